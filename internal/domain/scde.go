package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scde is a metering record from the SCDE measurement system, keyed by
// (group, period). Period references use the YYYY-MM form.
type Scde struct {
	RecordID      int64            `json:"record_id"`
	ClientID      string           `json:"client_id,omitempty"`
	ClientName    string           `json:"client_name,omitempty"`
	GroupName     string           `json:"group_name"`
	PeriodRef     string           `json:"period_ref"`
	Consumed      *decimal.Decimal `json:"consumed,omitempty"`
	Status        string           `json:"status,omitempty"`
	Origin        string           `json:"origin,omitempty"` // multi-source, comma-joined
	ImportBatchID string           `json:"import_batch_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
