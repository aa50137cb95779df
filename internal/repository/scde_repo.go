package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/enerflow/reconciler/internal/domain"
)

const scdeColumns = `record_id, client_id, client_name, group_name,
	period_ref, consumed, status, origin, import_batch_id, created_at`

type ScdeRepo struct {
	db DBTX
}

func NewScdeRepo(db DBTX) *ScdeRepo {
	return &ScdeRepo{db: db}
}

// FindByGroupPeriod matches the primary natural key (group, period).
func (r *ScdeRepo) FindByGroupPeriod(ctx context.Context, group, period string) (*domain.Scde, error) {
	return scanScde(r.db.QueryRowContext(ctx,
		"SELECT "+scdeColumns+" FROM scde_records WHERE group_name = ? AND period_ref = ? LIMIT 1",
		group, period))
}

// FindByClientPeriod is the fallback key used when no group match exists.
func (r *ScdeRepo) FindByClientPeriod(ctx context.Context, clientName, period string) (*domain.Scde, error) {
	return scanScde(r.db.QueryRowContext(ctx,
		"SELECT "+scdeColumns+" FROM scde_records WHERE client_name = ? AND period_ref = ? LIMIT 1",
		clientName, period))
}

func (r *ScdeRepo) Insert(ctx context.Context, rec *domain.Scde) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO scde_records
		(client_id, client_name, group_name, period_ref, consumed, status,
		 origin, import_batch_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		nullString(rec.ClientID), nullString(rec.ClientName), rec.GroupName,
		rec.PeriodRef, nullDecimal(rec.Consumed), nullString(rec.Status),
		nullString(rec.Origin), nullString(rec.ImportBatchID),
		rec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert scde record: %w", err)
	}
	return res.LastInsertId()
}

func (r *ScdeRepo) Update(ctx context.Context, recordID int64, rec *domain.Scde) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scde_records SET
		 client_id = ?, client_name = ?, group_name = ?, period_ref = ?,
		 consumed = ?, status = ?, origin = ?, import_batch_id = ?
		 WHERE record_id = ?`,
		nullString(rec.ClientID), nullString(rec.ClientName), rec.GroupName,
		rec.PeriodRef, nullDecimal(rec.Consumed), nullString(rec.Status),
		nullString(rec.Origin), nullString(rec.ImportBatchID), recordID)
	if err != nil {
		return fmt.Errorf("update scde record: %w", err)
	}
	return nil
}

// ScdeFilter narrows listing by period and/or group.
type ScdeFilter struct {
	Period string
	Group  string
	Page   int
	Limit  int
}

func (r *ScdeRepo) List(ctx context.Context, f ScdeFilter) ([]domain.Scde, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var clauses []string
	var args []any
	if f.Period != "" {
		clauses = append(clauses, "period_ref = ?")
		args = append(args, f.Period)
	}
	if f.Group != "" {
		clauses = append(clauses, "group_name = ?")
		args = append(args, f.Group)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scde_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scde records: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+scdeColumns+" FROM scde_records"+where+
			" ORDER BY period_ref DESC, group_name ASC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query scde records: %w", err)
	}
	defer rows.Close()

	var items []domain.Scde
	for rows.Next() {
		rec, err := scanScdeFrom(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan scde record: %w", err)
		}
		items = append(items, *rec)
	}
	return items, total, rows.Err()
}

func scanScde(row *sql.Row) (*domain.Scde, error) {
	rec, err := scanScdeFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan scde record: %w", err)
	}
	return rec, nil
}

func scanScdeFrom(s contractScanner) (*domain.Scde, error) {
	var rec domain.Scde
	var clientID, clientName, status, origin, batchID sql.NullString
	var consumed sql.NullString
	var createdAt string

	err := s.Scan(&rec.RecordID, &clientID, &clientName, &rec.GroupName,
		&rec.PeriodRef, &consumed, &status, &origin, &batchID, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.ClientID = stringOr(clientID)
	rec.ClientName = stringOr(clientName)
	rec.Consumed = scanDecimal(consumed)
	rec.Status = stringOr(status)
	rec.Origin = stringOr(origin)
	rec.ImportBatchID = stringOr(batchID)
	rec.CreatedAt = mustTime(createdAt)
	return &rec, nil
}
