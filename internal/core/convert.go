package core

// convert.go turns loosely-typed spreadsheet cells into typed values.
//
// Broker exports are messy:
//   - dates come as Excel serials, ISO text, "2006.01.02 15:04:05" or DD.MM.YYYY
//   - numbers carry currency symbols, thousands separators, decimal commas
//     or accounting parentheses for negatives
//   - text cells carry Excel formula prefixes and stray quotes

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// CellKind tags the variant held by a Cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellDate
)

// Cell is one spreadsheet value.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
}

// TextCell builds a cell from raw text; blank text becomes an empty cell.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{Kind: CellEmpty}
	}
	return Cell{Kind: CellText, Text: s}
}

// NumberCell builds a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f}
}

// DateCell builds a date cell.
func DateCell(t time.Time) Cell {
	return Cell{Kind: CellDate, Time: t}
}

// IsEmpty reports whether the cell holds nothing.
func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// String renders the cell the way it is shown in error entries.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return CleanCell(c.Text)
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellDate:
		if c.Time.Hour() == 0 && c.Time.Minute() == 0 && c.Time.Second() == 0 {
			return c.Time.Format("2006-01-02")
		}
		return c.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// Decimal coerces the cell to a decimal. ok is false for empty or unparseable cells.
func (c Cell) Decimal() (decimal.Decimal, bool) {
	switch c.Kind {
	case CellNumber:
		if math.IsNaN(c.Number) || math.IsInf(c.Number, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(c.Number), true
	case CellText:
		return ParseDecimal(c.Text)
	default:
		return decimal.Zero, false
	}
}

// DateTime coerces the cell to a time. Numbers are read as Excel serial dates.
func (c Cell) DateTime() (time.Time, bool) {
	switch c.Kind {
	case CellDate:
		return c.Time, true
	case CellNumber:
		return excelSerialToTime(c.Number)
	case CellText:
		return ParseDateTime(c.Text)
	default:
		return time.Time{}, false
	}
}

// Excel serials between 1900-01-01 and 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

func excelSerialToTime(f float64) (time.Time, bool) {
	if f < minExcelSerial || f > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseDecimal parses a number written by a human or a broker export.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripCurrency(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "").Replace(s)
	s = normalizeSeparators(s)

	if negative {
		s = "-" + strings.TrimPrefix(s, "-")
	}
	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var currencyMarks = []string{"$", "€", "£", "zł", "PLN", "USD", "EUR", "GBP", "CHF"}

func stripCurrency(s string) string {
	for _, m := range currencyMarks {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.TrimSpace(s)
}

// normalizeSeparators resolves thousands and decimal separators to a plain
// dot-decimal string. When both ',' and '.' appear, the last one is the
// decimal separator. A single comma followed by exactly three digits is a
// thousands separator; any other single comma is a decimal comma.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	default:
		return s
	}
}

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years more than
// this many years in the future are moved to the previous century.
var TwoDigitYearPivot = 20

var (
	dateTimeLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		"2006.01.02 15:04:05",
		"2006.01.02 15:04",
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006.01.02", "2006/01/02",
		"02.01.2006", "2.1.2006",
		"01/02/2006", "1/2/2006",
		"02-01-2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"02.01.06", "2.1.06", "01/02/06", "1/2/06",
	}
)

// ParseDateTime tries the known layouts in order of specificity.
func ParseDateTime(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// CleanCell removes common spreadsheet artifacts from a text value:
// surrounding whitespace, the Excel formula prefix (="...") and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
