package reconcile

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enerflow/reconciler/internal/calc"
	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/repository"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func july(day int) time.Time {
	return time.Date(2024, time.July, day, 0, 0, 0, 0, time.UTC)
}

func energyRow(client, meter string, day int, kwh string) ingestion.EnergyRow {
	return ingestion.EnergyRow{
		RowNumber:     2,
		ClientName:    client,
		Meter:         meter,
		ReferenceDate: july(day),
		Consumption:   dec(kwh),
		Origin:        "planilha",
	}
}

func TestRunInsertsThenUpdates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewEnergyOps("jul24", "batch-1", calc.BoundsDoubleVolume)

	counts, rowErrs, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "MTR-1", 1, "1000")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, counts)

	// Same natural key again: the row is updated, not duplicated.
	counts, rowErrs, err = Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "MTR-1", 1, "2000")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, domain.UpsertCounts{Updated: 1}, counts)

	stored, err := repository.NewEnergyBalanceRepo(db).FindByNaturalKey(ctx, "MTR-1", "ACME", july(1))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Consumption.Equal(decimal.NewFromInt(2000)))
}

func TestRunInsertOnlySkipsExisting(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewEnergyOps("jul24", "batch-1", calc.BoundsDoubleVolume)

	_, _, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "MTR-1", 1, "1000")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)

	counts, rowErrs, err := Run(ctx, db, []ingestion.EnergyRow{
		energyRow("ACME", "MTR-1", 1, "9999"),
		energyRow("ACME", "MTR-2", 1, "500"),
	}, domain.StrategyInsertOnly, ops, testLog())
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1, Skipped: 1}, counts)

	stored, err := repository.NewEnergyBalanceRepo(db).FindByNaturalKey(ctx, "MTR-1", "ACME", july(1))
	require.NoError(t, err)
	assert.True(t, stored.Consumption.Equal(decimal.NewFromInt(1000)), "existing row untouched")
}

func TestRunMeterlessRowsKeyOnClientName(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewEnergyOps("jul24", "batch-1", calc.BoundsDoubleVolume)

	_, _, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "", 1, "100")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)

	counts, _, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "", 1, "200")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Updated: 1}, counts)
}

func TestRunCreatesClientLazily(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewEnergyOps("jul24", "batch-1", calc.BoundsDoubleVolume)

	_, _, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("Nova Empresa", "MTR-9", 1, "100")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)

	client, err := repository.NewClientRepo(db).FindByName(ctx, "Nova Empresa")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NotEmpty(t, client.ClientID)
}

func TestRunEnergyDerivesAgainstContract(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	svc := NewContractService(db, calc.BoundsDoubleVolume, NewRecalculator(db, calc.BoundsDoubleVolume, testLog()), testLog())
	group := "MTR-1"
	_, err := svc.Create(ctx, ContractInput{
		ClientName:       "ACME",
		GroupName:        &group,
		ContractedVolume: dec("50"),
		AveragePrice:     dec("140"),
	})
	require.NoError(t, err)

	ops := NewEnergyOps("jul24", "batch-1", calc.BoundsDoubleVolume)
	_, rowErrs, err := Run(ctx, db, []ingestion.EnergyRow{energyRow("ACME", "MTR-1", 1, "200000")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	require.Empty(t, rowErrs)

	stored, err := repository.NewEnergyBalanceRepo(db).FindByNaturalKey(ctx, "MTR-1", "ACME", july(1))
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ContractID)
	assert.True(t, stored.Contract.Equal(decimal.NewFromInt(50)))
	assert.True(t, stored.Price.Equal(decimal.NewFromInt(140)))
	assert.True(t, stored.MaxDemand.Equal(decimal.NewFromInt(100)))
	assert.True(t, stored.Billable.Equal(decimal.NewFromInt(100)), "206 capped at max demand")
	assert.Equal(t, calc.CpMustBuy, stored.CpCode)
	assert.Equal(t, "batch-1", stored.ImportBatchID)
}

func scdeRow(agent, group, period, kwh string) ingestion.ScdeRow {
	return ingestion.ScdeRow{
		RowNumber:      2,
		Agent:          agent,
		GroupPoint:     group,
		ReferenceMonth: period,
		ActiveCKwh:     dec(kwh),
		Source:         "SCDE",
	}
}

func TestRunScdeKeysOnGroupPeriod(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewScdeOps("SCDE", "batch-1")

	counts, _, err := Run(ctx, db, []ingestion.ScdeRow{scdeRow("ACME", "GRP-1", "2024-07", "100")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, counts)

	counts, _, err = Run(ctx, db, []ingestion.ScdeRow{scdeRow("ACME", "GRP-1", "2024-07", "150")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Updated: 1}, counts)

	// Same group, new period: a distinct record.
	counts, _, err = Run(ctx, db, []ingestion.ScdeRow{scdeRow("ACME", "GRP-1", "2024-08", "80")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, counts)
}

func TestRunScdeFallsBackToClientPeriod(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ops := NewScdeOps("SCDE", "batch-1")

	_, _, err := Run(ctx, db, []ingestion.ScdeRow{scdeRow("ACME", "GRP-1", "2024-07", "100")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)

	// A groupless row for the same client and period updates the existing
	// record instead of creating a second one.
	counts, _, err := Run(ctx, db, []ingestion.ScdeRow{scdeRow("ACME", "", "2024-07", "175")}, domain.StrategyUpsert, ops, testLog())
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Updated: 1}, counts)

	stored, err := repository.NewScdeRepo(db).FindByClientPeriod(ctx, "ACME", "2024-07")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Consumed.Equal(decimal.NewFromInt(175)))
}

func TestRunEmptyRowsNoTransaction(t *testing.T) {
	db := testDB(t)
	counts, rowErrs, err := Run(context.Background(), db, nil, domain.StrategyUpsert, NewScdeOps("SCDE", "b"), testLog())
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, domain.UpsertCounts{}, counts)
}
