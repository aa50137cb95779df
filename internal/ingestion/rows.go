package ingestion

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enerflow/reconciler/internal/spreadsheet"
)

var monthHeaderPattern = regexp.MustCompile(`^(jan|fev|mar|abr|mai|jun|jul|ago|set|out|nov|dez)_\d{2}$`)

// table is one worksheet normalized through the header resolver: each data
// row keeps its original 1-based spreadsheet row number for error messages.
type table struct {
	sheetName string
	rows      []tableRow
	// mwhHint is set when the consumption column header itself mentions MWh,
	// e.g. "Consumo (MWh)".
	mwhHint bool
}

type tableRow struct {
	number int
	fields map[string]string
	// monthCell carries the value of a month-named column (e.g. "jul-25"),
	// used as a client-name fallback on period-tab layouts.
	monthCell string
	firstCell string
}

// normalizeSheet resolves the header row and reshapes data rows into
// canonical-field maps. The first sheet row is assumed to be the header.
func normalizeSheet(sheet *spreadsheet.Sheet, resolver *spreadsheet.Resolver) table {
	t := table{sheetName: sheet.Name}
	if len(sheet.Rows) == 0 {
		return t
	}

	header := sheet.Rows[0]
	canonical := make([]string, len(header))
	monthCol := -1
	for i, raw := range header {
		normalized := spreadsheet.NormalizeHeader(raw)
		canonical[i] = resolver.Resolve(raw)
		if canonical[i] == spreadsheet.FieldConsumption && strings.Contains(normalized, "mwh") {
			t.mwhHint = true
		}
		if monthCol < 0 && monthHeaderPattern.MatchString(normalized) {
			monthCol = i
		}
	}

	for idx, cells := range sheet.Rows[1:] {
		row := tableRow{
			number: idx + 2, // 1-based, header is row 1
			fields: make(map[string]string),
		}
		for i, cell := range cells {
			if i >= len(canonical) {
				break
			}
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			if i == 0 {
				row.firstCell = value
			}
			if i == monthCol {
				row.monthCell = value
			}
			field := canonical[i]
			if field == "" {
				continue // unmapped column, dropped silently
			}
			if _, exists := row.fields[field]; !exists {
				row.fields[field] = value
			}
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func (r tableRow) empty() bool {
	return len(r.fields) == 0 && r.firstCell == "" && r.monthCell == ""
}

func (r tableRow) str(field string) string {
	return r.fields[field]
}

// numberReader reads a row's numeric cells and remembers which present cells
// failed to parse. An absent or empty cell is a plain nil; a present but
// unparseable one becomes a row error so the row never imports with a silent
// null in its place.
type numberReader struct {
	row     tableRow
	invalid []string
}

func (n *numberReader) dec(field string) *decimal.Decimal {
	raw, ok := n.row.fields[field]
	if !ok {
		return nil
	}
	d, ok := spreadsheet.ToDecimal(raw)
	if !ok {
		n.invalid = append(n.invalid, fmt.Sprintf("%s %q", field, raw))
		return nil
	}
	return &d
}

func (n *numberReader) problem() string {
	if len(n.invalid) == 0 {
		return ""
	}
	return "unparseable numeric value: " + strings.Join(n.invalid, ", ")
}

func (r tableRow) date(field string) *time.Time {
	raw, ok := r.fields[field]
	if !ok {
		return nil
	}
	return spreadsheet.ReadDate(raw)
}
