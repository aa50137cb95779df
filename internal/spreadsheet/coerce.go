package spreadsheet

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cell values arrive either as raw spreadsheet strings or as decoded JSON
// values (string/float64/bool/nil) on the direct API write paths. The
// coercers in this file accept both.

// ToDecimal converts a raw cell value to a decimal. Strings follow Brazilian
// conventions: whitespace stripped, a trailing-group period treated as a
// thousands separator only when followed by exactly three digits and a
// non-digit or end of string, comma converted to the decimal point.
// Returns false for empty, nil or unparseable input.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		sanitized := sanitizeNumeric(val)
		if sanitized == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(sanitized)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func sanitizeNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	s = stripThousandsDots(b.String())
	return strings.ReplaceAll(s, ",", ".")
}

// stripThousandsDots removes each period that is followed by exactly three
// digits and then a non-digit or end of string.
func stripThousandsDots(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' {
			b.WriteRune(runes[i])
			continue
		}
		digits := 0
		j := i + 1
		for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
			digits++
			j++
		}
		if digits == 3 && (j >= len(runes) || runes[j] < '0' || runes[j] > '9') {
			continue // thousands separator
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

var brazilianDatePattern = regexp.MustCompile(`^(\d{2})[/\-.](\d{2})[/\-.](\d{4})$`)

var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ReadDate converts a raw cell value to a UTC-midnight date. It accepts
// native times, numeric spreadsheet serial date codes, ISO strings and
// Brazilian DD/MM/YYYY strings with /, - or . separators. The Brazilian form
// is checked before ISO layouts so 05/01/2024 is January 5, not May 1.
// Unrecognized input yields nil.
func ReadDate(v any) *time.Time {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return truncateUTC(val)
	case float64:
		return SerialDate(val, false)
	case int:
		return SerialDate(float64(val), false)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil
		}
		return SerialDate(f, false)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil
		}
		if m := brazilianDatePattern.FindStringSubmatch(trimmed); m != nil {
			t, err := time.Parse("02/01/2006", m[1]+"/"+m[2]+"/"+m[3])
			if err != nil {
				return nil
			}
			return truncateUTC(t)
		}
		for _, layout := range isoDateLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return truncateUTC(t)
			}
		}
		if d, err := decimal.NewFromString(trimmed); err == nil {
			f, _ := d.Float64()
			return SerialDate(f, false)
		}
		return nil
	default:
		return nil
	}
}

// Spreadsheet serial dates count days from the workbook epoch. The 1900
// system epoch is 1899-12-30, which also absorbs the historical leap-year
// quirk for codes above 59. The 1904 system starts at 1904-01-01.
var (
	epoch1900 = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// SerialDate resolves a numeric serial date code against the 1900 or 1904
// epoch. Codes outside the plausible range resolve to nil.
func SerialDate(code float64, date1904 bool) *time.Time {
	if code < 1 || code > 2958465 { // 9999-12-31 in the 1900 system
		return nil
	}
	epoch := epoch1900
	if date1904 {
		epoch = epoch1904
	}
	t := epoch.AddDate(0, 0, int(code))
	return &t
}

func truncateUTC(t time.Time) *time.Time {
	u := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &u
}

// ToBool coerces a raw cell value to a boolean. Recognized string forms are
// t/f, 1/0, true/false, yes/no and y/n, case-insensitive; anything else
// falls back to generic truthiness (non-empty, non-zero).
func ToBool(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "t", "1", "true", "yes", "y":
			return true
		case "f", "0", "false", "no", "n", "":
			return false
		default:
			return true
		}
	default:
		return false
	}
}

// Charges normalizes the charges blob. Valid JSON is compacted and kept;
// anything else is stored as the raw trimmed string. This is the lenient
// policy: a malformed charges cell must not reject the row.
func Charges(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return ""
		}
		if json.Valid([]byte(trimmed)) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(trimmed)); err == nil {
				return buf.String()
			}
		}
		return trimmed
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
