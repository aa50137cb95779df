package ingestion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/domain"
	"github.com/enerflow/reconciler/internal/spreadsheet"
)

// EnergyRow is one parsed energy-balance candidate record. Consumption is
// already normalized to kWh.
type EnergyRow struct {
	RowNumber     int
	ClientName    string
	Meter         string
	ReferenceDate time.Time
	Price         *decimal.Decimal
	AdjustedPrice *decimal.Decimal
	Supplier      string
	Email         string
	Consumption   *decimal.Decimal
	Measurement   string
	Proinfa       *decimal.Decimal
	Contract      *decimal.Decimal
	Minimum       *decimal.Decimal
	Maximum       *decimal.Decimal
	ToBill        *decimal.Decimal
	Cp            string
	Charges       string
	Origin        string
}

var decimalThousand = decimal.NewFromInt(1000)

// ParseEnergySheet extracts energy-balance rows. A row needs an identifiable
// client and a resolvable reference date; everything else is optional. Rows
// missing required data become row errors and are dropped, they never abort
// the sheet.
func ParseEnergySheet(sheet *spreadsheet.Sheet, origin, fileName string) ([]EnergyRow, []domain.RowError) {
	t := normalizeSheet(sheet, spreadsheet.NewEnergyResolver())
	if len(t.rows) == 0 {
		return nil, []domain.RowError{{
			Sheet:   sheet.Name,
			Row:     0,
			Message: "sheet has no data rows",
		}}
	}

	var (
		rows         []EnergyRow
		errors       []domain.RowError
		carriedDate  *time.Time
		fileNameDate = spreadsheet.InferDateFromFileName(fileName)
	)

	for _, row := range t.rows {
		if row.empty() {
			continue
		}

		client := row.str(spreadsheet.FieldClient)
		if client == "" {
			client = row.monthCell
		}
		if client == "" {
			client = row.firstCell
		}
		if client == "" {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: "client column not found or empty",
			})
			continue
		}

		refDate := row.date(spreadsheet.FieldReferenceDate)
		if refDate == nil {
			refDate = carriedDate
		}
		if refDate == nil {
			refDate = fileNameDate
		}
		if refDate == nil {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: "could not resolve reference date",
			})
			continue
		}
		if carriedDate == nil {
			carriedDate = refDate
		}

		nums := numberReader{row: row}
		consumption := nums.dec(spreadsheet.FieldConsumption)
		price := nums.dec(spreadsheet.FieldPrice)
		adjusted := nums.dec(spreadsheet.FieldAdjusted)
		proinfa := nums.dec(spreadsheet.FieldProinfa)
		contract := nums.dec(spreadsheet.FieldContract)
		minimum := nums.dec(spreadsheet.FieldMinimum)
		maximum := nums.dec(spreadsheet.FieldMaximum)
		toBill := nums.dec(spreadsheet.FieldToBill)
		if msg := nums.problem(); msg != "" {
			errors = append(errors, domain.RowError{
				Sheet:   sheet.Name,
				Row:     row.number,
				Message: msg,
			})
			continue
		}

		measurement := row.str(spreadsheet.FieldMeasurement)
		if consumption != nil && consumptionInMWh(measurement, t.mwhHint) {
			kwh := consumption.Mul(decimalThousand)
			consumption = &kwh
		}

		rows = append(rows, EnergyRow{
			RowNumber:     row.number,
			ClientName:    client,
			Meter:         row.str(spreadsheet.FieldMeter),
			ReferenceDate: *refDate,
			Price:         price,
			AdjustedPrice: adjusted,
			Supplier:      row.str(spreadsheet.FieldSupplier),
			Email:         row.str(spreadsheet.FieldEmail),
			Consumption:   consumption,
			Measurement:   measurement,
			Proinfa:       proinfa,
			Contract:      contract,
			Minimum:       minimum,
			Maximum:       maximum,
			ToBill:        toBill,
			Cp:            row.str(spreadsheet.FieldCp),
			Charges:       spreadsheet.Charges(row.str(spreadsheet.FieldCharges)),
			Origin:        origin,
		})
	}

	return rows, errors
}

// consumptionInMWh reports whether a consumption figure was supplied in MWh,
// either via an explicit measurement-unit cell or via the column header.
func consumptionInMWh(measurement string, headerHint bool) bool {
	if strings.Contains(strings.ToLower(measurement), "mwh") {
		return true
	}
	if measurement != "" {
		// Explicit non-MWh unit (e.g. kWh) outranks the header hint.
		return false
	}
	return headerHint
}
