package spreadsheet

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var monthSheetPattern = regexp.MustCompile(`^(jan|fev|mar|abr|mai|jun|jul|ago|set|out|nov|dez)[0-9]{2}$`)

var monthAbbrevPT = []string{
	"jan", "fev", "mar", "abr", "mai", "jun",
	"jul", "ago", "set", "out", "nov", "dez",
}

// MonthToken returns the compact Portuguese month tab token for the given
// time, e.g. jul25 for July 2025. This names the current-period worksheet.
func MonthToken(t time.Time) string {
	return fmt.Sprintf("%s%02d", monthAbbrevPT[t.Month()-1], t.Year()%100)
}

func normalizeSheetName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func compactSheetName(name string) string {
	return strings.Join(strings.Fields(normalizeSheetName(name)), "")
}

type sheetEntry struct {
	sheet      *Sheet
	normalized string
	compact    string
}

func sheetEntries(wb *Workbook) []sheetEntry {
	entries := make([]sheetEntry, len(wb.Sheets))
	for i := range wb.Sheets {
		entries[i] = sheetEntry{
			sheet:      &wb.Sheets[i],
			normalized: normalizeSheetName(wb.Sheets[i].Name),
			compact:    compactSheetName(wb.Sheets[i].Name),
		}
	}
	return entries
}

func selectSheet(entries []sheetEntry, pred func(sheetEntry) bool) *Sheet {
	for _, e := range entries {
		if pred(e) {
			return e.sheet
		}
	}
	return nil
}

// Detect chooses the single most relevant worksheet, in order: the
// current-period month tab (compacted name equal to periodToken), the SCDE
// tab, any month-abbreviation+2-digit-year tab, a tab named "nota", and
// finally the first sheet. Returns ErrEmptyWorkbook when there are no sheets.
func Detect(wb *Workbook, periodToken string) (*Sheet, error) {
	if len(wb.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	entries := sheetEntries(wb)

	if s := selectSheet(entries, func(e sheetEntry) bool { return e.compact == periodToken }); s != nil {
		return s, nil
	}
	if s := selectSheet(entries, func(e sheetEntry) bool { return e.normalized == "scde" }); s != nil {
		return s, nil
	}
	if s := selectSheet(entries, func(e sheetEntry) bool { return monthSheetPattern.MatchString(e.compact) }); s != nil {
		return s, nil
	}
	if s := selectSheet(entries, func(e sheetEntry) bool { return e.normalized == "nota" }); s != nil {
		return s, nil
	}
	return &wb.Sheets[0], nil
}

// FindEnergySheet locates the energy-balance tab: the current-period token
// first, then any month tab, then the "nota" fallback. Nil when absent.
func FindEnergySheet(wb *Workbook, periodToken string) *Sheet {
	entries := sheetEntries(wb)
	if s := selectSheet(entries, func(e sheetEntry) bool { return e.compact == periodToken }); s != nil {
		return s
	}
	if s := selectSheet(entries, func(e sheetEntry) bool { return monthSheetPattern.MatchString(e.compact) }); s != nil {
		return s
	}
	return selectSheet(entries, func(e sheetEntry) bool { return e.normalized == "nota" })
}

// FindScdeSheet locates the SCDE metering tab by name, case-insensitive.
func FindScdeSheet(wb *Workbook) *Sheet {
	entries := sheetEntries(wb)
	return selectSheet(entries, func(e sheetEntry) bool { return e.normalized == "scde" || e.compact == "scde" })
}

// InferDateFromFileName extracts a first-of-month reference date from file
// names like balanco_2024-07.xlsx or notas_jul25.xlsx. Nil when no year and
// month can be recognized.
func InferDateFromFileName(fileName string) *time.Time {
	normalized := NormalizeHeader(fileName)

	if m := yearMonthFilePattern.FindStringSubmatch(normalized); m != nil {
		year := atoiSafe(m[1])
		month := atoiSafe(m[2])
		t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return &t
	}

	if m := monthNameFilePattern.FindStringSubmatch(normalized); m != nil {
		for i, abbrev := range monthAbbrevPT {
			if abbrev == m[1] {
				t := time.Date(2000+atoiSafe(m[2]), time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
				return &t
			}
		}
	}
	return nil
}

var (
	yearMonthFilePattern = regexp.MustCompile(`(20\d{2})[_]?(0[1-9]|1[0-2])`)
	monthNameFilePattern = regexp.MustCompile(`(jan|fev|mar|abr|mai|jun|jul|ago|set|out|nov|dez)[_]?(\d{2})`)
)

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
