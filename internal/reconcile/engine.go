// Package reconcile owns every write path into the reconciled tables: the
// generic natural-key upsert engine the importers run on, the contract
// service, and the recalculation trigger that keeps derived fields
// consistent across writes.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/repository"
)

// batchTimeout bounds one record type's batch transaction. On expiry the
// transaction rolls back as a whole and the batch is retryable via its
// idempotency key.
const batchTimeout = 60 * time.Second

// Ops adapts one record type to the generic find-by-key, then
// insert/update/skip strategy. Find returns the existing row's id when the
// natural key matches.
type Ops[R any] interface {
	Sheet() string
	RowNumber(row R) int
	Find(ctx context.Context, tx repository.DBTX, row R) (int64, bool, error)
	Insert(ctx context.Context, tx repository.DBTX, row R) error
	Update(ctx context.Context, tx repository.DBTX, id int64, row R) error
}

// Run upserts all rows of one record type inside a single bounded
// transaction. Row-level failures are collected and do not abort the batch;
// transaction-level failures (begin, timeout, commit) abort it atomically.
func Run[R any](ctx context.Context, db *sql.DB, rows []R, strategy domain.OverwriteStrategy, ops Ops[R], log *zap.SugaredLogger) (domain.UpsertCounts, []domain.RowError, error) {
	var counts domain.UpsertCounts
	if len(rows) == 0 {
		return counts, nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return counts, nil, fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	var rowErrors []domain.RowError
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return domain.UpsertCounts{}, nil, fmt.Errorf("batch aborted: %w", err)
		}

		id, found, err := ops.Find(ctx, tx, row)
		if err != nil {
			rowErrors = append(rowErrors, rowError(ops, row, err, log))
			continue
		}

		switch {
		case !found:
			if err := ops.Insert(ctx, tx, row); err != nil {
				rowErrors = append(rowErrors, rowError(ops, row, err, log))
				continue
			}
			counts.Inserted++
		case strategy == domain.StrategyInsertOnly:
			counts.Skipped++
		default:
			if err := ops.Update(ctx, tx, id, row); err != nil {
				rowErrors = append(rowErrors, rowError(ops, row, err, log))
				continue
			}
			counts.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertCounts{}, nil, fmt.Errorf("commit batch tx: %w", err)
	}
	return counts, rowErrors, nil
}

func rowError[R any](ops Ops[R], row R, err error, log *zap.SugaredLogger) domain.RowError {
	log.Errorw("row upsert failed",
		"sheet", ops.Sheet(),
		"row", ops.RowNumber(row),
		"error", err)
	return domain.RowError{
		Sheet:   ops.Sheet(),
		Row:     ops.RowNumber(row),
		Message: err.Error(),
	}
}

// findContract walks the ordered contract lookup chain; the first non-nil
// match wins. The chain is a data-driven list so new fallbacks slot in
// without nesting conditionals.
func findContract(ctx context.Context, contracts *repository.ContractRepo, group, clientID string) (*domain.Contract, error) {
	if group == "" {
		return nil, nil
	}
	lookups := []func() (*domain.Contract, error){
		func() (*domain.Contract, error) {
			if clientID == "" {
				return nil, nil
			}
			return contracts.FindByGroupAndClient(ctx, group, clientID)
		},
		func() (*domain.Contract, error) {
			return contracts.FindByGroup(ctx, group)
		},
	}
	for _, lookup := range lookups {
		c, err := lookup()
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
	}
	return nil, nil
}
