package ingestion

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/spreadsheet"
)

// ScdeRow is one parsed SCDE metering candidate record.
type ScdeRow struct {
	RowNumber      int
	Agent          string
	GroupPoint     string
	ReferenceMonth string
	ActiveCKwh     *decimal.Decimal
	Quality        string
	Source         string
	Origin         string
}

// ParseScdeSheet extracts SCDE rows. Agent and reference month are required;
// the reference month has internal whitespace stripped so "2024 - 07" and
// "2024-07" compare equal downstream.
func ParseScdeSheet(sheet *spreadsheet.Sheet, origin string) ([]ScdeRow, []domain.RowError) {
	t := normalizeSheet(sheet, spreadsheet.NewScdeResolver())
	if len(t.rows) == 0 {
		return nil, []domain.RowError{{
			Sheet:   sheet.Name,
			Row:     0,
			Message: "sheet has no data rows",
		}}
	}

	var (
		rows   []ScdeRow
		errors []domain.RowError
	)

	for _, row := range t.rows {
		if row.empty() {
			continue
		}

		agent := row.str(spreadsheet.FieldAgent)
		if agent == "" {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: "agent column not found or empty",
			})
			continue
		}

		referenceMonth := strings.Join(strings.Fields(row.str(spreadsheet.FieldReferenceMonth)), "")
		if referenceMonth == "" {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: "reference_month column not found or empty",
			})
			continue
		}

		nums := numberReader{row: row}
		consumed := nums.dec(spreadsheet.FieldActiveCKwh)
		if msg := nums.problem(); msg != "" {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: msg,
			})
			continue
		}

		rows = append(rows, ScdeRow{
			RowNumber:      row.number,
			Agent:          agent,
			GroupPoint:     row.str(spreadsheet.FieldGroup),
			ReferenceMonth: referenceMonth,
			ActiveCKwh:     consumed,
			Quality:        row.str(spreadsheet.FieldQuality),
			Source:         row.str(spreadsheet.FieldSource),
			Origin:         origin,
		})
	}

	return rows, errors
}
