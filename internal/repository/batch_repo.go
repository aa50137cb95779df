package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/enerflow/reconciler/internal/domain"
)

const batchColumns = `id, batch_key, idempotency_key, file_name, origin,
	mime_type, overwrite_strategy, energy_inserted, energy_updated,
	energy_skipped, scde_inserted, scde_updated, scde_skipped, errors,
	created_at, completed_at`

type BatchRepo struct {
	db DBTX
}

func NewBatchRepo(db DBTX) *BatchRepo {
	return &BatchRepo{db: db}
}

// FindByIdempotencyKey returns the recorded batch for a previously seen
// payload; replaying it is how at-most-once import semantics are served.
func (r *BatchRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.ImportBatch, error) {
	return scanBatch(r.db.QueryRowContext(ctx,
		"SELECT "+batchColumns+" FROM import_batches WHERE idempotency_key = ?", key))
}

func (r *BatchRepo) FindByBatchKey(ctx context.Context, batchKey string) (*domain.ImportBatch, error) {
	return scanBatch(r.db.QueryRowContext(ctx,
		"SELECT "+batchColumns+" FROM import_batches WHERE batch_key = ?", batchKey))
}

func (r *BatchRepo) Insert(ctx context.Context, b *domain.ImportBatch) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO import_batches
		(batch_key, idempotency_key, file_name, origin, mime_type,
		 overwrite_strategy, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		b.BatchKey, b.IdempotencyKey, b.FileName, b.Origin, b.MimeType,
		string(b.Strategy), b.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert import batch: %w", err)
	}
	return res.LastInsertId()
}

// Complete stores the final counts and row errors once the batch finished.
func (r *BatchRepo) Complete(ctx context.Context, b *domain.ImportBatch) error {
	errorsJSON, err := json.Marshal(b.Errors)
	if err != nil {
		return fmt.Errorf("marshal batch errors: %w", err)
	}
	if b.Errors == nil {
		errorsJSON = []byte("[]")
	}
	now := time.Now().UTC()
	b.CompletedAt = &now

	_, err = r.db.ExecContext(ctx,
		`UPDATE import_batches SET
		 energy_inserted = ?, energy_updated = ?, energy_skipped = ?,
		 scde_inserted = ?, scde_updated = ?, scde_skipped = ?,
		 errors = ?, completed_at = ?
		 WHERE batch_key = ?`,
		b.EnergyCounts.Inserted, b.EnergyCounts.Updated, b.EnergyCounts.Skipped,
		b.ScdeCounts.Inserted, b.ScdeCounts.Updated, b.ScdeCounts.Skipped,
		string(errorsJSON), now.Format(time.RFC3339), b.BatchKey)
	if err != nil {
		return fmt.Errorf("complete import batch: %w", err)
	}
	return nil
}

func scanBatch(row *sql.Row) (*domain.ImportBatch, error) {
	var b domain.ImportBatch
	var strategy, errorsJSON, createdAt string
	var completedAt sql.NullString

	err := row.Scan(&b.ID, &b.BatchKey, &b.IdempotencyKey, &b.FileName,
		&b.Origin, &b.MimeType, &strategy,
		&b.EnergyCounts.Inserted, &b.EnergyCounts.Updated, &b.EnergyCounts.Skipped,
		&b.ScdeCounts.Inserted, &b.ScdeCounts.Updated, &b.ScdeCounts.Skipped,
		&errorsJSON, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan import batch: %w", err)
	}

	b.Strategy = domain.OverwriteStrategy(strategy)
	b.CreatedAt = mustTime(createdAt)
	b.CompletedAt = scanTime(completedAt)
	if err := json.Unmarshal([]byte(errorsJSON), &b.Errors); err != nil {
		b.Errors = nil
	}
	return &b, nil
}
