package reconcile

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/repository"
	"github.com/enerflow/reconciler/internal/spreadsheet"
)

// ValidationError marks a structurally unusable payload, as opposed to an
// infrastructure failure. Callers map it to a client error.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ImportRequest is one decoded import submission.
type ImportRequest struct {
	Data           []byte
	FileName       string
	MimeType       string
	Origin         string
	Strategy       domain.OverwriteStrategy
	IdempotencyKey string
}

// Importer orchestrates an import: idempotency check, workbook load, sheet
// detection, parsing, and the per-record-type reconciliation runs.
type Importer struct {
	db     *sql.DB
	bounds calc.BoundsStrategy
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewImporter(db *sql.DB, bounds calc.BoundsStrategy, log *zap.SugaredLogger) *Importer {
	return &Importer{db: db, bounds: bounds, log: log, now: time.Now}
}

// Import processes one spreadsheet submission. The second return reports a
// replay: the idempotency key matched a completed batch and its stored result
// was returned without reprocessing.
func (s *Importer) Import(ctx context.Context, req ImportRequest) (*domain.ImportBatch, bool, error) {
	if req.Strategy == "" {
		req.Strategy = domain.StrategyUpsert
	}
	if req.Strategy != domain.StrategyUpsert && req.Strategy != domain.StrategyInsertOnly {
		return nil, false, &ValidationError{Msg: fmt.Sprintf("unknown overwrite strategy %q", req.Strategy)}
	}
	if len(req.Data) == 0 {
		return nil, false, &ValidationError{Msg: "empty file payload"}
	}

	key := req.IdempotencyKey
	if key == "" {
		sum := sha256.Sum256(req.Data)
		key = hex.EncodeToString(sum[:])
	}

	batches := repository.NewBatchRepo(s.db)
	existing, err := batches.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.CompletedAt != nil {
		s.log.Infow("import replayed from idempotency key",
			"batch", existing.BatchKey, "file", req.FileName)
		return existing, true, nil
	}

	wb, err := spreadsheet.Load(req.Data)
	if err != nil {
		return nil, false, &ValidationError{Msg: fmt.Sprintf("unreadable workbook: %v", err)}
	}
	if len(wb.Sheets) == 0 {
		return nil, false, &ValidationError{Msg: spreadsheet.ErrEmptyWorkbook.Error()}
	}

	token := spreadsheet.MonthToken(s.now())
	energySheet := spreadsheet.FindEnergySheet(wb, token)
	scdeSheet := spreadsheet.FindScdeSheet(wb)
	if energySheet == nil && scdeSheet == nil {
		// Unrecognized tab names: treat the detector's pick as the
		// energy sheet so single-tab exports still import.
		energySheet, err = spreadsheet.Detect(wb, token)
		if err != nil {
			return nil, false, &ValidationError{Msg: err.Error()}
		}
	}

	batch := existing
	if batch == nil {
		batch = &domain.ImportBatch{
			BatchKey:       batchKey(s.now(), key),
			IdempotencyKey: key,
			FileName:       req.FileName,
			Origin:         req.Origin,
			MimeType:       req.MimeType,
			Strategy:       req.Strategy,
		}
		id, err := batches.Insert(ctx, batch)
		if err != nil {
			return nil, false, fmt.Errorf("register import batch: %w", err)
		}
		batch.ID = id
	}

	var allErrors []domain.RowError

	if energySheet != nil {
		rows, parseErrors := ingestion.ParseEnergySheet(energySheet, req.Origin, req.FileName)
		allErrors = append(allErrors, parseErrors...)

		ops := NewEnergyOps(energySheet.Name, batch.BatchKey, s.bounds)
		counts, rowErrors, err := Run(ctx, s.db, rows, req.Strategy, ops, s.log)
		if err != nil {
			return nil, false, fmt.Errorf("reconcile energy balances: %w", err)
		}
		batch.EnergyCounts = counts
		allErrors = append(allErrors, rowErrors...)
	}

	if scdeSheet != nil {
		rows, parseErrors := ingestion.ParseScdeSheet(scdeSheet, req.Origin)
		allErrors = append(allErrors, parseErrors...)

		ops := NewScdeOps(scdeSheet.Name, batch.BatchKey)
		counts, rowErrors, err := Run(ctx, s.db, rows, req.Strategy, ops, s.log)
		if err != nil {
			return nil, false, fmt.Errorf("reconcile scde records: %w", err)
		}
		batch.ScdeCounts = counts
		allErrors = append(allErrors, rowErrors...)
	}

	batch.Errors = allErrors
	if err := batches.Complete(ctx, batch); err != nil {
		return nil, false, fmt.Errorf("complete import batch: %w", err)
	}

	s.log.Infow("import completed",
		"batch", batch.BatchKey,
		"file", req.FileName,
		"energy", batch.EnergyCounts,
		"scde", batch.ScdeCounts,
		"row_errors", len(allErrors))
	return batch, false, nil
}

// Batch looks up a stored batch result by its public key.
func (s *Importer) Batch(ctx context.Context, batchKey string) (*domain.ImportBatch, error) {
	return repository.NewBatchRepo(s.db).FindByBatchKey(ctx, batchKey)
}

// UpsertEnergy applies a single direct energy-balance payload through the
// same engine the spreadsheet path uses, then returns the stored row.
func (s *Importer) UpsertEnergy(ctx context.Context, row ingestion.EnergyRow, strategy domain.OverwriteStrategy) (*domain.EnergyBalance, domain.UpsertCounts, error) {
	if strategy == "" {
		strategy = domain.StrategyUpsert
	}
	ops := NewEnergyOps("api", "", s.bounds)
	counts, rowErrors, err := Run(ctx, s.db, []ingestion.EnergyRow{row}, strategy, ops, s.log)
	if err != nil {
		return nil, counts, err
	}
	if len(rowErrors) > 0 {
		return nil, counts, &ValidationError{Msg: rowErrors[0].Message}
	}
	stored, err := repository.NewEnergyBalanceRepo(s.db).FindByNaturalKey(ctx, row.Meter, row.ClientName, row.ReferenceDate)
	if err != nil {
		return nil, counts, err
	}
	return stored, counts, nil
}

// UpsertScde applies a single direct SCDE payload through the engine.
func (s *Importer) UpsertScde(ctx context.Context, row ingestion.ScdeRow, strategy domain.OverwriteStrategy) (*domain.Scde, domain.UpsertCounts, error) {
	if strategy == "" {
		strategy = domain.StrategyUpsert
	}
	ops := NewScdeOps("api", "")
	counts, rowErrors, err := Run(ctx, s.db, []ingestion.ScdeRow{row}, strategy, ops, s.log)
	if err != nil {
		return nil, counts, err
	}
	if len(rowErrors) > 0 {
		return nil, counts, &ValidationError{Msg: rowErrors[0].Message}
	}
	repo := repository.NewScdeRepo(s.db)
	group := row.GroupPoint
	if group == "" {
		group = row.Agent
	}
	stored, err := repo.FindByGroupPeriod(ctx, group, row.ReferenceMonth)
	if err != nil {
		return nil, counts, err
	}
	if stored == nil {
		stored, err = repo.FindByClientPeriod(ctx, row.Agent, row.ReferenceMonth)
		if err != nil {
			return nil, counts, err
		}
	}
	return stored, counts, nil
}

func batchKey(now time.Time, idempotencyKey string) string {
	suffix := idempotencyKey
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s_%s", now.UTC().Format("20060102T150405"), suffix)
}
