package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/enerflow/reconciler/internal/domain"
)

const contractColumns = `id, contract_code, client_id, client_name, group_name,
	supplier, email, contracted_volume_mwh, lower_limit_percent,
	upper_limit_percent, flexibility_percent, min_demand, max_demand,
	average_price_mwh, proinfa_contribution, status, start_date, end_date,
	compliance_nf, compliance_invoice, compliance_overall, created_at, updated_at`

type ContractRepo struct {
	db DBTX
}

func NewContractRepo(db DBTX) *ContractRepo {
	return &ContractRepo{db: db}
}

func (r *ContractRepo) GetByID(ctx context.Context, id int64) (*domain.Contract, error) {
	return scanContract(r.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE id = ?", id))
}

func (r *ContractRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contracts WHERE contract_code = ?", code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count contract code: %w", err)
	}
	return n > 0, nil
}

// FindByGroupAndClient is the first step of the contract lookup chain:
// meter/group plus client. FindByGroup is the fallback when it misses.
func (r *ContractRepo) FindByGroupAndClient(ctx context.Context, group, clientID string) (*domain.Contract, error) {
	return scanContract(r.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE group_name = ? AND client_id = ? ORDER BY id LIMIT 1",
		group, clientID))
}

func (r *ContractRepo) FindByGroup(ctx context.Context, group string) (*domain.Contract, error) {
	return scanContract(r.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE group_name = ? ORDER BY id LIMIT 1", group))
}

func (r *ContractRepo) List(ctx context.Context) ([]domain.Contract, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+contractColumns+" FROM contracts ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		c, err := scanContractRows(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (r *ContractRepo) Insert(ctx context.Context, c *domain.Contract) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO contracts
		(contract_code, client_id, client_name, group_name, supplier, email,
		 contracted_volume_mwh, lower_limit_percent, upper_limit_percent,
		 flexibility_percent, min_demand, max_demand, average_price_mwh,
		 proinfa_contribution, status, start_date, end_date, compliance_nf,
		 compliance_invoice, compliance_overall, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ContractCode, c.ClientID, c.ClientName, nullString(c.GroupName),
		nullString(c.Supplier), nullString(c.Email),
		nullDecimal(c.ContractedVolume), nullDecimal(c.LowerLimitPercent),
		nullDecimal(c.UpperLimitPercent), nullDecimal(c.FlexibilityPercent),
		nullDecimal(c.MinDemand), nullDecimal(c.MaxDemand),
		nullDecimal(c.AveragePrice), nullDecimal(c.Proinfa),
		nullString(c.Status), nullTime(c.StartDate), nullTime(c.EndDate),
		nullBool(c.ComplianceNF), nullBool(c.ComplianceInvoice),
		nullBool(c.ComplianceOverall),
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert contract: %w", err)
	}
	return res.LastInsertId()
}

func (r *ContractRepo) Update(ctx context.Context, c *domain.Contract) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET
		 client_id = ?, client_name = ?, group_name = ?, supplier = ?, email = ?,
		 contracted_volume_mwh = ?, lower_limit_percent = ?, upper_limit_percent = ?,
		 flexibility_percent = ?, min_demand = ?, max_demand = ?,
		 average_price_mwh = ?, proinfa_contribution = ?, status = ?,
		 start_date = ?, end_date = ?, compliance_nf = ?, compliance_invoice = ?,
		 compliance_overall = ?, updated_at = ?
		 WHERE id = ?`,
		c.ClientID, c.ClientName, nullString(c.GroupName),
		nullString(c.Supplier), nullString(c.Email),
		nullDecimal(c.ContractedVolume), nullDecimal(c.LowerLimitPercent),
		nullDecimal(c.UpperLimitPercent), nullDecimal(c.FlexibilityPercent),
		nullDecimal(c.MinDemand), nullDecimal(c.MaxDemand),
		nullDecimal(c.AveragePrice), nullDecimal(c.Proinfa),
		nullString(c.Status), nullTime(c.StartDate), nullTime(c.EndDate),
		nullBool(c.ComplianceNF), nullBool(c.ComplianceInvoice),
		nullBool(c.ComplianceOverall), time.Now().UTC().Format(time.RFC3339),
		c.ID)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	return nil
}

func (r *ContractRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type contractScanner interface {
	Scan(dest ...any) error
}

func scanContract(row *sql.Row) (*domain.Contract, error) {
	c, err := scanContractFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func scanContractRows(rows *sql.Rows) (*domain.Contract, error) {
	return scanContractFrom(rows)
}

func scanContractFrom(s contractScanner) (*domain.Contract, error) {
	var c domain.Contract
	var group, supplier, email, status sql.NullString
	var volume, lower, upper, flex, minD, maxD, price, proinfa sql.NullString
	var start, end sql.NullString
	var nf, invoice, overall sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(&c.ID, &c.ContractCode, &c.ClientID, &c.ClientName, &group,
		&supplier, &email, &volume, &lower, &upper, &flex, &minD, &maxD,
		&price, &proinfa, &status, &start, &end, &nf, &invoice, &overall,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.GroupName = stringOr(group)
	c.Supplier = stringOr(supplier)
	c.Email = stringOr(email)
	c.Status = stringOr(status)
	c.ContractedVolume = scanDecimal(volume)
	c.LowerLimitPercent = scanDecimal(lower)
	c.UpperLimitPercent = scanDecimal(upper)
	c.FlexibilityPercent = scanDecimal(flex)
	c.MinDemand = scanDecimal(minD)
	c.MaxDemand = scanDecimal(maxD)
	c.AveragePrice = scanDecimal(price)
	c.Proinfa = scanDecimal(proinfa)
	c.StartDate = scanTime(start)
	c.EndDate = scanTime(end)
	c.ComplianceNF = scanBool(nf)
	c.ComplianceInvoice = scanBool(invoice)
	c.ComplianceOverall = scanBool(overall)
	c.CreatedAt = mustTime(createdAt)
	c.UpdatedAt = mustTime(updatedAt)
	return &c, nil
}
