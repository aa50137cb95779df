package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/repository"
)

// EnergyOps reconciles parsed energy rows against the energy_balances table.
// The natural key is (meter, reference date), falling back to
// (client name, reference date) for rows without a meter.
type EnergyOps struct {
	sheet   string
	batchID string
	bounds  calc.BoundsStrategy
}

func NewEnergyOps(sheet, batchID string, bounds calc.BoundsStrategy) *EnergyOps {
	return &EnergyOps{sheet: sheet, batchID: batchID, bounds: bounds}
}

func (o *EnergyOps) Sheet() string { return o.sheet }

func (o *EnergyOps) RowNumber(row ingestion.EnergyRow) int { return row.RowNumber }

func (o *EnergyOps) Find(ctx context.Context, tx repository.DBTX, row ingestion.EnergyRow) (int64, bool, error) {
	existing, err := repository.NewEnergyBalanceRepo(tx).FindByNaturalKey(ctx, row.Meter, row.ClientName, row.ReferenceDate)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, nil
	}
	return existing.ID, true, nil
}

func (o *EnergyOps) Insert(ctx context.Context, tx repository.DBTX, row ingestion.EnergyRow) error {
	eb, err := o.build(ctx, tx, row)
	if err != nil {
		return err
	}
	_, err = repository.NewEnergyBalanceRepo(tx).Insert(ctx, eb)
	return err
}

func (o *EnergyOps) Update(ctx context.Context, tx repository.DBTX, id int64, row ingestion.EnergyRow) error {
	eb, err := o.build(ctx, tx, row)
	if err != nil {
		return err
	}
	return repository.NewEnergyBalanceRepo(tx).Update(ctx, id, eb)
}

// build resolves the client and contract for one row and runs the derived
// calculator. Values present on the sheet always win over derived ones.
func (o *EnergyOps) build(ctx context.Context, tx repository.DBTX, row ingestion.EnergyRow) (*domain.EnergyBalance, error) {
	client, err := repository.NewClientRepo(tx).GetOrCreate(ctx, row.ClientName)
	if err != nil {
		return nil, err
	}

	contract, err := findContract(ctx, repository.NewContractRepo(tx), row.Meter, client.ClientID)
	if err != nil {
		return nil, err
	}

	derived := calc.Derive(calc.Inputs{
		ConsumptionKwh: row.Consumption,
		Price:          row.Price,
		AdjustedPrice:  row.AdjustedPrice,
		ExplicitVolume: row.Contract,
		Proinfa:        row.Proinfa,
		Email:          row.Email,
		Supplier:       row.Supplier,
		Contract:       contract,
		ClientEmail:    client.Email,
		Strategy:       o.bounds,
	})

	proinfa := derived.Proinfa
	eb := &domain.EnergyBalance{
		ClientID:      client.ClientID,
		ClientName:    row.ClientName,
		Meter:         row.Meter,
		ReferenceDate: row.ReferenceDate,
		Price:         derived.Price,
		AdjustedPrice: row.AdjustedPrice,
		Supplier:      derived.Supplier,
		Email:         derived.Email,
		Consumption:   row.Consumption,
		Measurement:   row.Measurement,
		Proinfa:       &proinfa,
		Contract:      derived.Volume,
		ContractID:    derived.ContractID,
		MinDemand:     coalesce(row.Minimum, derived.MinDemand),
		MaxDemand:     coalesce(row.Maximum, derived.MaxDemand),
		Billable:      coalesce(row.ToBill, derived.Billable),
		Loss:          derived.Loss,
		Requirement:   derived.Requirement,
		Net:           derived.Net,
		CpCode:        row.Cp,
		Charges:       row.Charges,
		Origin:        row.Origin,
		ImportBatchID: o.batchID,
	}
	if eb.CpCode == "" {
		eb.CpCode = derived.CpCode
	}
	return eb, nil
}

func coalesce(explicit, derived *decimal.Decimal) *decimal.Decimal {
	if explicit != nil {
		return explicit
	}
	return derived
}
