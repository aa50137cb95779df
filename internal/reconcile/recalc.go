package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/repository"
)

// Recalculator re-runs the derived calculator over stored energy balances
// after a contributing input changed outside the import path, e.g. a
// contract edit.
type Recalculator struct {
	db     *sql.DB
	bounds calc.BoundsStrategy
	log    *zap.SugaredLogger
}

func NewRecalculator(db *sql.DB, bounds calc.BoundsStrategy, log *zap.SugaredLogger) *Recalculator {
	return &Recalculator{db: db, bounds: bounds, log: log}
}

// RecalcContractGroup recomputes derived fields for every energy balance
// whose meter matches the contract group and persists them. Returns the
// number of rows updated.
//
// Stored row-level inputs (consumption, proinfa, price) are treated as
// explicit; the contract contributes volume, bounds and fallbacks, so a
// changed contract term propagates without clobbering per-row data.
func (r *Recalculator) RecalcContractGroup(ctx context.Context, group string) (int, error) {
	if group == "" {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin recalc tx: %w", err)
	}
	defer tx.Rollback()

	energy := repository.NewEnergyBalanceRepo(tx)
	balances, err := energy.ListByContractGroup(ctx, group)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range balances {
		eb := &balances[i]
		if err := r.recalcOne(ctx, tx, eb); err != nil {
			return 0, fmt.Errorf("recalc balance %d: %w", eb.ID, err)
		}
		if err := energy.UpdateDerived(ctx, eb.ID, eb); err != nil {
			return 0, fmt.Errorf("persist balance %d: %w", eb.ID, err)
		}
		updated++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit recalc tx: %w", err)
	}
	r.log.Infow("recalculated contract group", "group", group, "updated", updated)
	return updated, nil
}

// RecalcBalance recomputes one balance in place, for row-level edits such as
// a direct proinfa override, and returns the updated record.
func (r *Recalculator) RecalcBalance(ctx context.Context, id int64) (*domain.EnergyBalance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recalc tx: %w", err)
	}
	defer tx.Rollback()

	energy := repository.NewEnergyBalanceRepo(tx)
	eb, err := energy.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if eb == nil {
		return nil, sql.ErrNoRows
	}
	if err := r.recalcOne(ctx, tx, eb); err != nil {
		return nil, err
	}
	if err := energy.UpdateDerived(ctx, eb.ID, eb); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recalc tx: %w", err)
	}
	return eb, nil
}

func (r *Recalculator) recalcOne(ctx context.Context, tx repository.DBTX, eb *domain.EnergyBalance) error {
	contract, err := findContract(ctx, repository.NewContractRepo(tx), eb.Meter, eb.ClientID)
	if err != nil {
		return err
	}

	clientEmail := ""
	if eb.ClientID != "" {
		client, err := repository.NewClientRepo(tx).GetByID(ctx, eb.ClientID)
		if err != nil {
			return err
		}
		if client != nil {
			clientEmail = client.Email
		}
	}

	derived := calc.Derive(calc.Inputs{
		ConsumptionKwh: eb.Consumption,
		Price:          eb.Price,
		AdjustedPrice:  eb.AdjustedPrice,
		Proinfa:        eb.Proinfa,
		Email:          eb.Email,
		Supplier:       eb.Supplier,
		Contract:       contract,
		ClientEmail:    clientEmail,
		Strategy:       r.bounds,
	})

	proinfa := derived.Proinfa
	eb.Price = derived.Price
	eb.Proinfa = &proinfa
	eb.Contract = derived.Volume
	eb.ContractID = derived.ContractID
	eb.MinDemand = derived.MinDemand
	eb.MaxDemand = derived.MaxDemand
	eb.Billable = derived.Billable
	eb.Loss = derived.Loss
	eb.Requirement = derived.Requirement
	eb.Net = derived.Net
	eb.CpCode = derived.CpCode
	eb.Email = derived.Email
	eb.Supplier = derived.Supplier
	return nil
}
