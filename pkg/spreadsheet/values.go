package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
}

var amountReplacer = strings.NewReplacer(
	"S/.", "",
	"S/", "",
	" ", "",
	"\u00a0", "",
)

// cell returns the trimmed value at idx, or "" when the row is shorter or
// the column is unmapped.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount reads a decimal amount. Currency prefixes and spaces are
// ignored and an empty cell is zero. Both "1,234.50" and "1.234,50" are
// accepted: when both separators appear the last one is the decimal point.
// A lone comma followed by one or two digits is a decimal comma; a lone
// comma followed by three digits could be either and is rejected.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := amountReplacer.Replace(raw)
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, nil
	}
	normalized, err := normalizeAmount(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q %w", raw, err)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", raw)
	}
	return d, nil
}

var errNotANumber = errors.New("is not a number")

// normalizeAmount rewrites s so the only separator left is a '.' decimal point.
func normalizeAmount(s string) (string, error) {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	var intPart, frac string
	var thousands byte
	switch {
	case dots == 0 && commas == 0:
		return sign + s, nil
	case dots > 0 && commas > 0:
		decimalAt, decimalSep := lastDot, byte('.')
		thousands = ','
		if lastComma > lastDot {
			decimalAt, decimalSep = lastComma, ','
			thousands = '.'
		}
		if strings.Count(s, string(decimalSep)) > 1 {
			return "", errNotANumber
		}
		intPart, frac = s[:decimalAt], s[decimalAt+1:]
	case commas > 0:
		thousands = ','
		if commas == 1 {
			switch digits := len(s) - lastComma - 1; {
			case digits == 1 || digits == 2:
				intPart, frac, thousands = s[:lastComma], s[lastComma+1:], 0
			case digits == 3:
				return "", errors.New("is ambiguous: write the decimal separator explicitly, e.g. 1.234,000 or 1,234.000")
			default:
				return "", errNotANumber
			}
		} else {
			intPart = s
		}
	default: // dots only
		if dots == 1 {
			return sign + s, nil
		}
		thousands = '.'
		intPart = s
	}

	if thousands != 0 {
		grouped, ok := ungroup(intPart, thousands)
		if !ok {
			return "", errors.New("has misplaced thousands separators")
		}
		intPart = grouped
	}
	if frac == "" {
		return sign + intPart, nil
	}
	return sign + intPart + "." + frac, nil
}

// ungroup strips thousands separators, requiring groups of exactly three
// digits after the first.
func ungroup(s string, sep byte) (string, bool) {
	groups := strings.Split(s, string(sep))
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	return strings.Join(groups, ""), true
}

// parseDate accepts Excel serial numbers and a handful of textual layouts.
// An empty cell yields nil without error. Results are UTC.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid date", raw)
		}
		t = t.UTC()
		return &t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q is not a valid date", raw)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
