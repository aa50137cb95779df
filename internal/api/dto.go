package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/ingestion"
	"github.com/enerflow/reconciler/internal/reconcile"
	"github.com/enerflow/reconciler/internal/spreadsheet"
)

// Numeric and date payload fields are typed as `any`: clients send the same
// loosely formatted values that appear in the spreadsheets (Brazilian decimal
// strings, serial date codes), so the payloads go through the same coercers
// as the cells.

type importRequest struct {
	FileName          string `json:"fileName"`
	MimeType          string `json:"mimeType"`
	Base64            string `json:"base64"`
	Origin            string `json:"origin"`
	OverwriteStrategy string `json:"overwriteStrategy"`
	IdempotencyKey    string `json:"idempotencyKey"`
}

type importCounts struct {
	EnergyBalance domain.UpsertCounts `json:"energyBalance"`
	Scde          domain.UpsertCounts `json:"scde"`
}

// importResponse is the declared import envelope. Counts and errors are
// always present, errors as an empty array rather than null.
type importResponse struct {
	Success           bool                     `json:"success"`
	Replayed          bool                     `json:"replayed,omitempty"`
	ImportBatchID     string                   `json:"importBatchId"`
	FileName          string                   `json:"fileName"`
	Origin            string                   `json:"origin,omitempty"`
	OverwriteStrategy domain.OverwriteStrategy `json:"overwriteStrategy"`
	Counts            importCounts             `json:"counts"`
	Errors            []domain.RowError        `json:"errors"`
	CreatedAt         time.Time                `json:"createdAt"`
	CompletedAt       *time.Time               `json:"completedAt,omitempty"`
}

func newImportResponse(b *domain.ImportBatch, replayed bool) importResponse {
	errs := b.Errors
	if errs == nil {
		errs = []domain.RowError{}
	}
	return importResponse{
		Success:           true,
		Replayed:          replayed,
		ImportBatchID:     b.BatchKey,
		FileName:          b.FileName,
		Origin:            b.Origin,
		OverwriteStrategy: b.Strategy,
		Counts: importCounts{
			EnergyBalance: b.EnergyCounts,
			Scde:          b.ScdeCounts,
		},
		Errors:      errs,
		CreatedAt:   b.CreatedAt,
		CompletedAt: b.CompletedAt,
	}
}

type energyUpsertRequest struct {
	ClientName        string `json:"clientName"`
	Meter             string `json:"meter"`
	ReferenceDate     any    `json:"referenceDate"`
	Price             any    `json:"price"`
	AdjustedPrice     any    `json:"adjustedPrice"`
	Supplier          string `json:"supplier"`
	Email             string `json:"email"`
	Consumption       any    `json:"consumption"`
	Measurement       string `json:"measurement"`
	Proinfa           any    `json:"proinfa"`
	ContractVolume    any    `json:"contractVolume"`
	MinDemand         any    `json:"minDemand"`
	MaxDemand         any    `json:"maxDemand"`
	Billable          any    `json:"billable"`
	CpCode            string `json:"cpCode"`
	Charges           any    `json:"charges"`
	Origin            string `json:"origin"`
	OverwriteStrategy string `json:"overwriteStrategy"`
}

func (req *energyUpsertRequest) toRow() (ingestion.EnergyRow, string) {
	if strings.TrimSpace(req.ClientName) == "" {
		return ingestion.EnergyRow{}, "clientName is required"
	}
	refDate := spreadsheet.ReadDate(req.ReferenceDate)
	if refDate == nil {
		return ingestion.EnergyRow{}, "referenceDate is required and must be a recognizable date"
	}

	consumption := decPtr(req.Consumption)
	if consumption != nil && strings.Contains(strings.ToLower(req.Measurement), "mwh") {
		kwh := consumption.Mul(decimal.NewFromInt(1000))
		consumption = &kwh
	}

	return ingestion.EnergyRow{
		ClientName:    strings.TrimSpace(req.ClientName),
		Meter:         strings.TrimSpace(req.Meter),
		ReferenceDate: *refDate,
		Price:         decPtr(req.Price),
		AdjustedPrice: decPtr(req.AdjustedPrice),
		Supplier:      strings.TrimSpace(req.Supplier),
		Email:         strings.TrimSpace(req.Email),
		Consumption:   consumption,
		Measurement:   strings.TrimSpace(req.Measurement),
		Proinfa:       decPtr(req.Proinfa),
		Contract:      decPtr(req.ContractVolume),
		Minimum:       decPtr(req.MinDemand),
		Maximum:       decPtr(req.MaxDemand),
		ToBill:        decPtr(req.Billable),
		Cp:            strings.TrimSpace(req.CpCode),
		Charges:       spreadsheet.Charges(req.Charges),
		Origin:        strings.TrimSpace(req.Origin),
	}, ""
}

type scdeUpsertRequest struct {
	ClientName string `json:"clientName"`
	Group      string `json:"group"`
	Period     string `json:"period"`
	Consumed   any    `json:"consumed"`
	Status     string `json:"status"`
	// Origin takes a single label or an array of source labels, which are
	// comma-joined the way multi-source metering records arrive.
	Origin            any    `json:"origin"`
	OverwriteStrategy string `json:"overwriteStrategy"`
}

func (req *scdeUpsertRequest) toRow() (ingestion.ScdeRow, string) {
	if strings.TrimSpace(req.ClientName) == "" && strings.TrimSpace(req.Group) == "" {
		return ingestion.ScdeRow{}, "clientName or group is required"
	}
	period := strings.Join(strings.Fields(req.Period), "")
	if period == "" {
		return ingestion.ScdeRow{}, "period is required"
	}
	agent := strings.TrimSpace(req.ClientName)
	if agent == "" {
		agent = strings.TrimSpace(req.Group)
	}
	return ingestion.ScdeRow{
		Agent:          agent,
		GroupPoint:     strings.TrimSpace(req.Group),
		ReferenceMonth: period,
		ActiveCKwh:     decPtr(req.Consumed),
		Quality:        strings.TrimSpace(req.Status),
		Origin:         originText(req.Origin),
	}, ""
}

// originText flattens an origin payload field: a plain label passes through,
// an array of labels is comma-joined in order.
func originText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		var parts []string
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

type contractRequest struct {
	ContractCode       string  `json:"contractCode"`
	ClientName         string  `json:"clientName"`
	GroupName          *string `json:"groupName"`
	Supplier           *string `json:"supplier"`
	Email              *string `json:"email"`
	ContractedVolume   any     `json:"contractedVolumeMwh"`
	LowerLimitPercent  any     `json:"lowerLimitPercent"`
	UpperLimitPercent  any     `json:"upperLimitPercent"`
	FlexibilityPercent any     `json:"flexibilityPercent"`
	MinDemand          any     `json:"minDemand"`
	MaxDemand          any     `json:"maxDemand"`
	AveragePrice       any     `json:"averagePriceMwh"`
	Proinfa            any     `json:"proinfaContribution"`
	Status             *string `json:"status"`
	StartDate          any     `json:"startDate"`
	EndDate            any     `json:"endDate"`
	ComplianceOverall  any     `json:"complianceOverall"`
	ComplianceNF       any     `json:"complianceNf"`
	ComplianceInvoice  any     `json:"complianceInvoice"`
}

func (req *contractRequest) toInput() reconcile.ContractInput {
	return reconcile.ContractInput{
		ContractCode:       strings.TrimSpace(req.ContractCode),
		ClientName:         strings.TrimSpace(req.ClientName),
		GroupName:          req.GroupName,
		Supplier:           req.Supplier,
		Email:              req.Email,
		ContractedVolume:   decPtr(req.ContractedVolume),
		LowerLimitPercent:  decPtr(req.LowerLimitPercent),
		UpperLimitPercent:  decPtr(req.UpperLimitPercent),
		FlexibilityPercent: decPtr(req.FlexibilityPercent),
		MinDemand:          decPtr(req.MinDemand),
		MaxDemand:          decPtr(req.MaxDemand),
		AveragePrice:       decPtr(req.AveragePrice),
		Proinfa:            decPtr(req.Proinfa),
		Status:             req.Status,
		StartDate:          spreadsheet.ReadDate(req.StartDate),
		EndDate:            spreadsheet.ReadDate(req.EndDate),
		ComplianceOverall:  boolPtr(req.ComplianceOverall),
		ComplianceNF:       boolPtr(req.ComplianceNF),
		ComplianceInvoice:  boolPtr(req.ComplianceInvoice),
	}
}

func decPtr(v any) *decimal.Decimal {
	d, ok := spreadsheet.ToDecimal(v)
	if !ok {
		return nil
	}
	return &d
}

// boolPtr keeps patch semantics: an absent field stays nil, a present one is
// coerced like a spreadsheet boolean cell ("1", "true", "sim", ...).
func boolPtr(v any) *bool {
	if v == nil {
		return nil
	}
	b := spreadsheet.ToBool(v)
	return &b
}

// parseMonth accepts 2006-01 and 200601 forms and returns the half-open
// [from, to) range covering that month.
func parseMonth(s string) (time.Time, time.Time, bool) {
	for _, layout := range []string{"2006-01", "200601"} {
		if t, err := time.Parse(layout, s); err == nil {
			from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
			return from, from.AddDate(0, 1, 0), true
		}
	}
	return time.Time{}, time.Time{}, false
}

type complianceItem struct {
	ContractCode      string `json:"contractCode"`
	ClientName        string `json:"clientName"`
	GroupName         string `json:"groupName,omitempty"`
	Status            string `json:"status,omitempty"`
	ComplianceNF      *bool  `json:"complianceNf,omitempty"`
	ComplianceInvoice *bool  `json:"complianceInvoice,omitempty"`
	ComplianceOverall *bool  `json:"complianceOverall,omitempty"`
	Compliant         bool   `json:"compliant"`
}

type opportunityItem struct {
	ClientName    string           `json:"clientName"`
	Meter         string           `json:"meter,omitempty"`
	ReferenceDate time.Time        `json:"referenceDate"`
	Net           *decimal.Decimal `json:"net,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	EstimatedCost *decimal.Decimal `json:"estimatedCost,omitempty"`
}

func newOpportunity(eb *domain.EnergyBalance) opportunityItem {
	item := opportunityItem{
		ClientName:    eb.ClientName,
		Meter:         eb.Meter,
		ReferenceDate: eb.ReferenceDate,
		Net:           eb.Net,
		Price:         eb.Price,
	}
	if eb.Net != nil && eb.Price != nil {
		cost := eb.Net.Mul(*eb.Price)
		item.EstimatedCost = &cost
	}
	return item
}
