package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OverwriteStrategy controls what the reconciliation engine does when an
// imported row matches an existing record by natural key.
type OverwriteStrategy string

const (
	StrategyUpsert     OverwriteStrategy = "upsert"
	StrategyInsertOnly OverwriteStrategy = "insertOnly"
)

// EnergyBalance is one row per (meter, reference period). Amounts are stored
// in kWh for consumption and MWh for all derived energy figures.
type EnergyBalance struct {
	ID            int64            `json:"id"`
	ClientID      string           `json:"client_id,omitempty"`
	ClientName    string           `json:"client_name"`
	Meter         string           `json:"meter,omitempty"`
	ReferenceDate time.Time        `json:"reference_date"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	AdjustedPrice *decimal.Decimal `json:"adjusted_price,omitempty"`
	Supplier      string           `json:"supplier,omitempty"`
	Email         string           `json:"email,omitempty"`
	Consumption   *decimal.Decimal `json:"consumption,omitempty"` // kWh
	Measurement   string           `json:"measurement,omitempty"`
	Proinfa       *decimal.Decimal `json:"proinfa,omitempty"`
	Contract      *decimal.Decimal `json:"contract,omitempty"` // contracted volume snapshot, MWh
	ContractID    *int64           `json:"contract_id,omitempty"`
	MinDemand     *decimal.Decimal `json:"min_demand,omitempty"`
	MaxDemand     *decimal.Decimal `json:"max_demand,omitempty"`
	Billable      *decimal.Decimal `json:"billable,omitempty"`
	Loss          *decimal.Decimal `json:"loss,omitempty"`
	Requirement   *decimal.Decimal `json:"requirement,omitempty"`
	Net           *decimal.Decimal `json:"net,omitempty"`
	CpCode        string           `json:"cp_code,omitempty"`
	Charges       string           `json:"charges,omitempty"`
	Origin        string           `json:"origin,omitempty"`
	ImportBatchID string           `json:"import_batch_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
