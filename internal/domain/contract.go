package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contract holds the commercial terms an energy balance reconciles against.
// Demand bounds are recomputed whenever the contracted volume or any of the
// limit percentages change.
type Contract struct {
	ID                 int64            `json:"id"`
	ContractCode       string           `json:"contract_code"`
	ClientID           string           `json:"client_id"`
	ClientName         string           `json:"client_name"`
	GroupName          string           `json:"group_name,omitempty"`
	Supplier           string           `json:"supplier,omitempty"`
	Email              string           `json:"email,omitempty"`
	ContractedVolume   *decimal.Decimal `json:"contracted_volume_mwh,omitempty"`
	LowerLimitPercent  *decimal.Decimal `json:"lower_limit_percent,omitempty"`
	UpperLimitPercent  *decimal.Decimal `json:"upper_limit_percent,omitempty"`
	FlexibilityPercent *decimal.Decimal `json:"flexibility_percent,omitempty"`
	MinDemand          *decimal.Decimal `json:"min_demand,omitempty"`
	MaxDemand          *decimal.Decimal `json:"max_demand,omitempty"`
	AveragePrice       *decimal.Decimal `json:"average_price_mwh,omitempty"`
	Proinfa            *decimal.Decimal `json:"proinfa_contribution,omitempty"`
	Status             string           `json:"status,omitempty"`
	StartDate          *time.Time       `json:"start_date,omitempty"`
	EndDate            *time.Time       `json:"end_date,omitempty"`
	ComplianceOverall  *bool            `json:"compliance_overall,omitempty"`
	ComplianceNF       *bool            `json:"compliance_nf,omitempty"`
	ComplianceInvoice  *bool            `json:"compliance_invoice,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Client is read-mostly reference data, created lazily whenever an ingestion
// references a client name with no existing match.
type Client struct {
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
