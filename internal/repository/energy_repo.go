package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/domain"
)

const energyColumns = `id, client_id, client_name, meter, reference_date,
	price, adjusted_price, supplier, email, consumption_kwh, measurement,
	proinfa, contract_volume, contract_id, min_demand, max_demand, billable,
	loss, requirement, net, cp_code, charges, origin, import_batch_id,
	created_at, updated_at`

type EnergyBalanceRepo struct {
	db DBTX
}

func NewEnergyBalanceRepo(db DBTX) *EnergyBalanceRepo {
	return &EnergyBalanceRepo{db: db}
}

func (r *EnergyBalanceRepo) GetByID(ctx context.Context, id int64) (*domain.EnergyBalance, error) {
	return scanEnergy(r.db.QueryRowContext(ctx,
		"SELECT "+energyColumns+" FROM energy_balances WHERE id = ?", id))
}

// FindByNaturalKey implements the upsert key: (meter, referenceDate) when a
// meter is known, falling back to (clientName, referenceDate) for rows
// without an installation number.
func (r *EnergyBalanceRepo) FindByNaturalKey(ctx context.Context, meter, clientName string, referenceDate time.Time) (*domain.EnergyBalance, error) {
	ref := referenceDate.UTC().Format(time.RFC3339)
	if meter != "" {
		return scanEnergy(r.db.QueryRowContext(ctx,
			"SELECT "+energyColumns+" FROM energy_balances WHERE meter = ? AND reference_date = ? LIMIT 1",
			meter, ref))
	}
	return scanEnergy(r.db.QueryRowContext(ctx,
		"SELECT "+energyColumns+" FROM energy_balances WHERE client_name = ? AND reference_date = ? LIMIT 1",
		clientName, ref))
}

// ListByContractGroup returns all balances whose meter matches a contract's
// group name; these are the rows the recalculation trigger visits.
func (r *EnergyBalanceRepo) ListByContractGroup(ctx context.Context, group string) ([]domain.EnergyBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+energyColumns+" FROM energy_balances WHERE meter = ? ORDER BY reference_date",
		group)
	if err != nil {
		return nil, fmt.Errorf("query balances by group: %w", err)
	}
	defer rows.Close()
	return collectEnergy(rows)
}

func (r *EnergyBalanceRepo) Insert(ctx context.Context, eb *domain.EnergyBalance) (int64, error) {
	now := time.Now().UTC()
	if eb.CreatedAt.IsZero() {
		eb.CreatedAt = now
	}
	if eb.UpdatedAt.IsZero() {
		eb.UpdatedAt = now
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO energy_balances
		(client_id, client_name, meter, reference_date, price, adjusted_price,
		 supplier, email, consumption_kwh, measurement, proinfa,
		 contract_volume, contract_id, min_demand, max_demand, billable, loss,
		 requirement, net, cp_code, charges, origin, import_batch_id,
		 created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullString(eb.ClientID), eb.ClientName, nullString(eb.Meter),
		eb.ReferenceDate.UTC().Format(time.RFC3339),
		nullDecimal(eb.Price), nullDecimal(eb.AdjustedPrice),
		nullString(eb.Supplier), nullString(eb.Email),
		nullDecimal(eb.Consumption), nullString(eb.Measurement),
		nullDecimal(eb.Proinfa), nullDecimal(eb.Contract),
		nullInt64(eb.ContractID), nullDecimal(eb.MinDemand),
		nullDecimal(eb.MaxDemand), nullDecimal(eb.Billable),
		nullDecimal(eb.Loss), nullDecimal(eb.Requirement), nullDecimal(eb.Net),
		nullString(eb.CpCode), nullString(eb.Charges), nullString(eb.Origin),
		nullString(eb.ImportBatchID),
		eb.CreatedAt.Format(time.RFC3339), eb.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert energy balance: %w", err)
	}
	return res.LastInsertId()
}

func (r *EnergyBalanceRepo) Update(ctx context.Context, id int64, eb *domain.EnergyBalance) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE energy_balances SET
		 client_id = ?, client_name = ?, meter = ?, reference_date = ?,
		 price = ?, adjusted_price = ?, supplier = ?, email = ?,
		 consumption_kwh = ?, measurement = ?, proinfa = ?,
		 contract_volume = ?, contract_id = ?, min_demand = ?, max_demand = ?,
		 billable = ?, loss = ?, requirement = ?, net = ?, cp_code = ?,
		 charges = ?, origin = ?, import_batch_id = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(eb.ClientID), eb.ClientName, nullString(eb.Meter),
		eb.ReferenceDate.UTC().Format(time.RFC3339),
		nullDecimal(eb.Price), nullDecimal(eb.AdjustedPrice),
		nullString(eb.Supplier), nullString(eb.Email),
		nullDecimal(eb.Consumption), nullString(eb.Measurement),
		nullDecimal(eb.Proinfa), nullDecimal(eb.Contract),
		nullInt64(eb.ContractID), nullDecimal(eb.MinDemand),
		nullDecimal(eb.MaxDemand), nullDecimal(eb.Billable),
		nullDecimal(eb.Loss), nullDecimal(eb.Requirement), nullDecimal(eb.Net),
		nullString(eb.CpCode), nullString(eb.Charges), nullString(eb.Origin),
		nullString(eb.ImportBatchID), time.Now().UTC().Format(time.RFC3339),
		id)
	if err != nil {
		return fmt.Errorf("update energy balance: %w", err)
	}
	return nil
}

// UpdateDerived persists only the calculator output for an existing row,
// used by the recalculation trigger.
func (r *EnergyBalanceRepo) UpdateDerived(ctx context.Context, id int64, eb *domain.EnergyBalance) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE energy_balances SET
		 price = ?, supplier = ?, email = ?, proinfa = ?, contract_volume = ?,
		 contract_id = ?, min_demand = ?, max_demand = ?, billable = ?,
		 loss = ?, requirement = ?, net = ?, cp_code = ?, updated_at = ?
		 WHERE id = ?`,
		nullDecimal(eb.Price), nullString(eb.Supplier), nullString(eb.Email),
		nullDecimal(eb.Proinfa), nullDecimal(eb.Contract),
		nullInt64(eb.ContractID), nullDecimal(eb.MinDemand),
		nullDecimal(eb.MaxDemand), nullDecimal(eb.Billable),
		nullDecimal(eb.Loss), nullDecimal(eb.Requirement), nullDecimal(eb.Net),
		nullString(eb.CpCode), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update derived fields: %w", err)
	}
	return nil
}

// MonthFilter selects balances for a reference month with pagination.
type MonthFilter struct {
	From  time.Time
	To    time.Time // exclusive
	Page  int
	Limit int
}

func (f *MonthFilter) normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
}

// MonthSummary aggregates one reference month.
type MonthSummary struct {
	Rows        int             `json:"rows"`
	Consumption decimal.Decimal `json:"consumption"`
	Billable    decimal.Decimal `json:"billable"`
}

func (r *EnergyBalanceRepo) ListByMonth(ctx context.Context, f MonthFilter) ([]domain.EnergyBalance, int, error) {
	f.normalize()
	from := f.From.UTC().Format(time.RFC3339)
	to := f.To.UTC().Format(time.RFC3339)

	var total int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM energy_balances WHERE reference_date >= ? AND reference_date < ?",
		from, to).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count balances: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+energyColumns+` FROM energy_balances
		 WHERE reference_date >= ? AND reference_date < ?
		 ORDER BY reference_date ASC, id ASC LIMIT ? OFFSET ?`,
		from, to, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	items, err := collectEnergy(rows)
	return items, total, err
}

func (r *EnergyBalanceRepo) SummarizeMonth(ctx context.Context, from, to time.Time) (*MonthSummary, error) {
	var s MonthSummary
	var consumption, billable sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			SUM(CAST(consumption_kwh AS REAL)),
			SUM(CAST(billable AS REAL))
		 FROM energy_balances WHERE reference_date >= ? AND reference_date < ?`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).
		Scan(&s.Rows, &consumption, &billable)
	if err != nil {
		return nil, fmt.Errorf("summarize month: %w", err)
	}
	if consumption.Valid {
		s.Consumption = decimal.NewFromFloat(consumption.Float64)
	}
	if billable.Valid {
		s.Billable = decimal.NewFromFloat(billable.Float64)
	}
	return &s, nil
}

func collectEnergy(rows *sql.Rows) ([]domain.EnergyBalance, error) {
	var items []domain.EnergyBalance
	for rows.Next() {
		eb, err := scanEnergyFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan energy balance: %w", err)
		}
		items = append(items, *eb)
	}
	return items, rows.Err()
}

func scanEnergy(row *sql.Row) (*domain.EnergyBalance, error) {
	eb, err := scanEnergyFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan energy balance: %w", err)
	}
	return eb, nil
}

func scanEnergyFrom(s contractScanner) (*domain.EnergyBalance, error) {
	var eb domain.EnergyBalance
	var clientID, meter, supplier, email, measurement, cpCode sql.NullString
	var charges, origin, batchID sql.NullString
	var price, adjusted, consumption, proinfa, volume sql.NullString
	var minD, maxD, billable, loss, requirement, net sql.NullString
	var contractID sql.NullInt64
	var referenceDate, createdAt, updatedAt string

	err := s.Scan(&eb.ID, &clientID, &eb.ClientName, &meter, &referenceDate,
		&price, &adjusted, &supplier, &email, &consumption, &measurement,
		&proinfa, &volume, &contractID, &minD, &maxD, &billable, &loss,
		&requirement, &net, &cpCode, &charges, &origin, &batchID,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	eb.ClientID = stringOr(clientID)
	eb.Meter = stringOr(meter)
	eb.ReferenceDate = mustTime(referenceDate)
	eb.Price = scanDecimal(price)
	eb.AdjustedPrice = scanDecimal(adjusted)
	eb.Supplier = stringOr(supplier)
	eb.Email = stringOr(email)
	eb.Consumption = scanDecimal(consumption)
	eb.Measurement = stringOr(measurement)
	eb.Proinfa = scanDecimal(proinfa)
	eb.Contract = scanDecimal(volume)
	eb.ContractID = scanInt64(contractID)
	eb.MinDemand = scanDecimal(minD)
	eb.MaxDemand = scanDecimal(maxD)
	eb.Billable = scanDecimal(billable)
	eb.Loss = scanDecimal(loss)
	eb.Requirement = scanDecimal(requirement)
	eb.Net = scanDecimal(net)
	eb.CpCode = stringOr(cpCode)
	eb.Charges = stringOr(charges)
	eb.Origin = stringOr(origin)
	eb.ImportBatchID = stringOr(batchID)
	eb.CreatedAt = mustTime(createdAt)
	eb.UpdatedAt = mustTime(updatedAt)
	return &eb, nil
}
