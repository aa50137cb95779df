package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// standalone or inside the reconciliation engine's batch transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// The UNIQUE constraints below are load-bearing: natural-key dedup for
// energy balances and SCDE records, contract code uniqueness and batch
// idempotency are enforced by the store, not only by application logic.
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			client_id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			email TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS contracts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_code TEXT UNIQUE NOT NULL,
			client_id TEXT NOT NULL,
			client_name TEXT NOT NULL,
			group_name TEXT,
			supplier TEXT,
			email TEXT,
			contracted_volume_mwh TEXT,
			lower_limit_percent TEXT,
			upper_limit_percent TEXT,
			flexibility_percent TEXT,
			min_demand TEXT,
			max_demand TEXT,
			average_price_mwh TEXT,
			proinfa_contribution TEXT,
			status TEXT,
			start_date DATETIME,
			end_date DATETIME,
			compliance_nf INTEGER,
			compliance_invoice INTEGER,
			compliance_overall INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (client_id) REFERENCES clients(client_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_group ON contracts(group_name)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_client ON contracts(client_id)`,

		`CREATE TABLE IF NOT EXISTS energy_balances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT,
			client_name TEXT NOT NULL,
			meter TEXT,
			reference_date DATETIME NOT NULL,
			price TEXT,
			adjusted_price TEXT,
			supplier TEXT,
			email TEXT,
			consumption_kwh TEXT,
			measurement TEXT,
			proinfa TEXT,
			contract_volume TEXT,
			contract_id INTEGER,
			min_demand TEXT,
			max_demand TEXT,
			billable TEXT,
			loss TEXT,
			requirement TEXT,
			net TEXT,
			cp_code TEXT,
			charges TEXT,
			origin TEXT,
			import_batch_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (contract_id) REFERENCES contracts(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_energy_meter_ref
			ON energy_balances(meter, reference_date)
			WHERE meter IS NOT NULL AND meter != ''`,
		`CREATE INDEX IF NOT EXISTS idx_energy_client_ref ON energy_balances(client_name, reference_date)`,
		`CREATE INDEX IF NOT EXISTS idx_energy_reference ON energy_balances(reference_date)`,
		`CREATE INDEX IF NOT EXISTS idx_energy_meter ON energy_balances(meter)`,

		`CREATE TABLE IF NOT EXISTS scde_records (
			record_id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id TEXT,
			client_name TEXT,
			group_name TEXT NOT NULL,
			period_ref TEXT NOT NULL,
			consumed TEXT,
			status TEXT,
			origin TEXT,
			import_batch_id TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE (group_name, period_ref)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scde_client_period ON scde_records(client_name, period_ref)`,

		`CREATE TABLE IF NOT EXISTS import_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_key TEXT UNIQUE NOT NULL,
			idempotency_key TEXT UNIQUE NOT NULL,
			file_name TEXT NOT NULL,
			origin TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			overwrite_strategy TEXT NOT NULL,
			energy_inserted INTEGER NOT NULL DEFAULT 0,
			energy_updated INTEGER NOT NULL DEFAULT 0,
			energy_skipped INTEGER NOT NULL DEFAULT 0,
			scde_inserted INTEGER NOT NULL DEFAULT 0,
			scde_updated INTEGER NOT NULL DEFAULT 0,
			scde_skipped INTEGER NOT NULL DEFAULT 0,
			errors TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
