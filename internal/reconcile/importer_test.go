package reconcile

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/repository"
)

func csvPayload() []byte {
	return []byte("Cliente;Data Base;Medidor;Consumo\n" +
		"ACME Energia;01/07/2024;MTR-1;1000\n" +
		"Beta Ltda;01/07/2024;MTR-2;2.500\n")
}

func TestImportCSV(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	batch, replayed, err := imp.Import(context.Background(), ImportRequest{
		Data:     csvPayload(),
		FileName: "balanco_jul24.csv",
		MimeType: "text/csv",
		Origin:   "upload",
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	require.NotNil(t, batch)
	assert.Equal(t, domain.UpsertCounts{Inserted: 2}, batch.EnergyCounts)
	assert.Empty(t, batch.Errors)
	assert.NotNil(t, batch.CompletedAt)

	stored, err := repository.NewEnergyBalanceRepo(db).FindByNaturalKey(context.Background(), "MTR-2", "Beta Ltda", july(1))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Consumption.Equal(decimal.NewFromInt(2500)))
}

func TestImportIdempotencyReplay(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())
	req := ImportRequest{Data: csvPayload(), FileName: "balanco.csv", Origin: "upload"}

	first, replayed, err := imp.Import(context.Background(), req)
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := imp.Import(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.BatchKey, second.BatchKey)
	assert.Equal(t, first.EnergyCounts, second.EnergyCounts)

	// The underlying rows were written exactly once.
	rows, total, err := repository.NewEnergyBalanceRepo(db).ListByMonth(context.Background(), repository.MonthFilter{
		From: july(1), To: july(1).AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, rows, 2)
}

func TestImportExplicitIdempotencyKey(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	_, replayed, err := imp.Import(context.Background(), ImportRequest{
		Data: csvPayload(), FileName: "a.csv", Origin: "upload", IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.False(t, replayed)

	// Different content, same key: replayed without touching the store.
	_, replayed, err = imp.Import(context.Background(), ImportRequest{
		Data: []byte("Cliente;Consumo\nOutra;1\n"), FileName: "b.csv", Origin: "upload", IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.True(t, replayed)
}

func TestImportDualSheetWorkbook(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "jul24"))
	for i, row := range [][]any{
		{"Cliente", "Data Base", "Medidor", "Consumo"},
		{"ACME Energia", "01/07/2024", "MTR-1", "1000"},
	} {
		require.NoError(t, f.SetSheetRow("jul24", cellRef(i+1), &row))
	}
	_, err := f.NewSheet("SCDE")
	require.NoError(t, err)
	for i, row := range [][]any{
		{"Agente", "Ponto de Grupo", "Mês de Referência", "Ativa C (kWh)"},
		{"ACME Energia", "GRP-1", "2024-07", "999"},
	} {
		require.NoError(t, f.SetSheetRow("SCDE", cellRef(i+1), &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	batch, _, err := imp.Import(context.Background(), ImportRequest{
		Data:     buf.Bytes(),
		FileName: "balanco_jul24.xlsx",
		Origin:   "upload",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, batch.EnergyCounts)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, batch.ScdeCounts)

	scde, err := repository.NewScdeRepo(db).FindByGroupPeriod(context.Background(), "GRP-1", "2024-07")
	require.NoError(t, err)
	require.NotNil(t, scde)
	assert.True(t, scde.Consumed.Equal(decimal.NewFromInt(999)))
}

func cellRef(row int) string {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	return cell
}

func TestImportRowErrorsDoNotAbortBatch(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	data := []byte("Cliente;Data Base;Consumo\n" +
		";01/07/2024;100\n" +
		"ACME;01/07/2024;200\n")
	batch, _, err := imp.Import(context.Background(), ImportRequest{
		Data: data, FileName: "parcial.csv", Origin: "upload",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, batch.EnergyCounts)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, 2, batch.Errors[0].Row)
}

func TestImportRejectsUnusablePayloads(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	_, _, err := imp.Import(context.Background(), ImportRequest{FileName: "x.csv"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = imp.Import(context.Background(), ImportRequest{
		Data: csvPayload(), FileName: "x.csv", Strategy: "merge",
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "strategy")
}

func TestImportBatchLookup(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	batch, _, err := imp.Import(context.Background(), ImportRequest{
		Data: csvPayload(), FileName: "balanco.csv", Origin: "upload",
	})
	require.NoError(t, err)

	found, err := imp.Batch(context.Background(), batch.BatchKey)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, batch.EnergyCounts, found.EnergyCounts)

	missing, err := imp.Batch(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDirectUpsertEnergy(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	row := ingestion.EnergyRow{
		ClientName:    "ACME",
		Meter:         "MTR-1",
		ReferenceDate: july(1),
		Consumption:   dec("200000"),
		Contract:      dec("50"),
	}
	stored, counts, err := imp.UpsertEnergy(context.Background(), row, "")
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, counts)
	require.NotNil(t, stored)
	assert.True(t, stored.Billable.Equal(decimal.NewFromInt(100)))

	row.Consumption = dec("50000")
	stored, counts, err = imp.UpsertEnergy(context.Background(), row, domain.StrategyUpsert)
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Updated: 1}, counts)
	assert.True(t, stored.Consumption.Equal(decimal.NewFromInt(50000)))
}

func TestDirectUpsertScde(t *testing.T) {
	db := testDB(t)
	imp := NewImporter(db, "double-volume", testLog())

	stored, counts, err := imp.UpsertScde(context.Background(), ingestion.ScdeRow{
		Agent:          "ACME",
		GroupPoint:     "GRP-1",
		ReferenceMonth: "2024-07",
		ActiveCKwh:     dec("123"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertCounts{Inserted: 1}, counts)
	require.NotNil(t, stored)
	assert.True(t, stored.Consumed.Equal(decimal.NewFromInt(123)))

	client, err := repository.NewClientRepo(db).FindByName(context.Background(), "ACME")
	require.NoError(t, err)
	assert.NotNil(t, client, "client created lazily")
}
