package report

import (
	"strconv"
	"strings"
)

// Cell markers shown in the report tables.
const (
	Absent  = "-"
	Present = "+"
)

// naValues are read as missing, matching what spreadsheet exports produce
// for empty cells.
var naValues = map[string]bool{
	"":     true,
	"nan":  true,
	"NaN":  true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"null": true,
	"NULL": true,
}

// Normalize maps a raw report cell to what the report shows:
// missing and numeric values become "-", values containing "%" become "+",
// anything else is returned unchanged. Normalize(Normalize(v)) == Normalize(v).
func Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	if naValues[v] {
		return Absent
	}
	if isNumeric(v) {
		return Absent
	}
	if strings.Contains(v, "%") {
		return Present
	}
	return raw
}

// isNumeric reports whether v is a decimal number, including Inf and NaN.
// Hex literals such as 0x1p4 are cell text, not numbers.
func isNumeric(v string) bool {
	digits := strings.TrimLeft(v, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}
