package core

// convert.go turns raw cell text into typed policy values.
//
// These functions handle the messy reality of user-provided files:
//   - Multiple date formats (ISO, US, spelled-out months)
//   - Currency symbols and thousand separators in amounts
//   - Excel formula prefixes (="value")
//
// Parse functions report ok=false for empty or unparsable input and never
// guess: an ambiguous value is rejected rather than coerced.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// groupedRegex matches amounts whose commas are strict thousands separators.
// Anything else containing a comma (decimal commas like "9999,50") is rejected.
var groupedRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// dateLayouts are tried in order. ISO forms come first; slash and dash
// numeric forms are month-first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"1/2/2006",
	"01/02/2006",
	"1-2-2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"20060102",
}

// ParseDate parses a calendar date. The result is midnight UTC of the date
// written in s; any time-of-day component is discarded.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

// ParseDecimal parses a monetary amount. Currency symbols are stripped,
// commas are accepted only as thousands separators, and the accounting form
// "(123.45)" is read as negative.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", "USD", "").Replace(s)
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		if !groupedRegex.MatchString(s) {
			return decimal.Zero, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// CleanCell trims whitespace and unwraps the ="value" formula wrapper.
// Quotes and apostrophes inside the value are kept.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}

	return s
}

// headerKey normalizes a header cell into the key rows are indexed by.
// Stray surrounding quotes are dropped from headers only.
func headerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.Trim(CleanCell(s), `"'`)))
}
