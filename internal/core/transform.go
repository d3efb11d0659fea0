package core

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// binding maps the canonical fields of one kind to column indexes of a sheet.
// It is resolved once per sheet.
type binding struct {
	def        KindDefinition
	cols       map[string]int
	positional bool
}

// bindHeader resolves header cells against the kind's aliases. The first
// column matching a field wins and a column binds at most one field.
func bindHeader(def KindDefinition, header []Cell) *binding {
	lookup := make(map[string]string)
	for _, f := range def.Fields {
		if _, ok := lookup[foldKey(f.Name)]; !ok {
			lookup[foldKey(f.Name)] = f.Name
		}
		for _, a := range f.Aliases {
			key := foldKey(a)
			if _, ok := lookup[key]; !ok {
				lookup[key] = f.Name
			}
		}
	}

	b := &binding{def: def, cols: make(map[string]int)}
	for i, c := range header {
		if c.Kind != CellText {
			continue
		}
		field, ok := lookup[foldKey(c.Text)]
		if !ok {
			continue
		}
		if _, taken := b.cols[field]; taken {
			continue
		}
		b.cols[field] = i
	}
	return b
}

// positionalBinding uses the kind's field order as column order.
func positionalBinding(def KindDefinition) *binding {
	b := &binding{def: def, cols: make(map[string]int, len(def.Fields)), positional: true}
	for i, f := range def.Fields {
		b.cols[f.Name] = i
	}
	return b
}

func (b *binding) has(field string) bool {
	_, ok := b.cols[field]
	return ok
}

func (b *binding) matched() int {
	return len(b.cols)
}

// RowReader gives a kind's build function typed access to one bound row.
// It records the raw text of every field it reads and collects coercion
// problems: unknown enum spellings fail the row, unreadable optional dates
// only add a warning.
type RowReader struct {
	binding  *binding
	row      Row
	sheet    string
	raw      map[string]string
	failures []FieldError
	warnings []RowError
}

func newRowReader(b *binding, sheet string, row Row) *RowReader {
	return &RowReader{
		binding: b,
		row:     row,
		sheet:   sheet,
		raw:     make(map[string]string),
	}
}

func (r *RowReader) cell(field string) Cell {
	idx, ok := r.binding.cols[field]
	if !ok || idx >= len(r.row.Cells) {
		return Cell{}
	}
	c := r.row.Cells[idx]
	r.raw[field] = c.String()
	return c
}

// Raw returns the text of a field as it appeared in the sheet.
func (r *RowReader) Raw(field string) string {
	if v, ok := r.raw[field]; ok {
		return v
	}
	return r.cell(field).String()
}

// Text returns the trimmed text of a field.
func (r *RowReader) Text(field string) string {
	return r.cell(field).String()
}

// Upper returns the trimmed, upper-cased text of a field.
func (r *RowReader) Upper(field string) string {
	return strings.ToUpper(r.Text(field))
}

// Decimal returns the numeric value of a field, or zero when it is empty or unreadable.
func (r *RowReader) Decimal(field string) decimal.Decimal {
	d, ok := r.cell(field).Decimal()
	if !ok {
		return decimal.Zero
	}
	return d
}

// OptionalDecimal returns nil for an empty cell and zero for an unreadable one.
func (r *RowReader) OptionalDecimal(field string) *decimal.Decimal {
	c := r.cell(field)
	if c.IsEmpty() {
		return nil
	}
	d, ok := c.Decimal()
	if !ok {
		d = decimal.Zero
	}
	return &d
}

// Time returns nil for an empty cell. An unreadable date is dropped and
// reported as a warning.
func (r *RowReader) Time(field string) *time.Time {
	c := r.cell(field)
	if c.IsEmpty() {
		return nil
	}
	t, ok := c.DateTime()
	if !ok {
		r.warnings = append(r.warnings, RowError{
			Row:      r.row.Number,
			Sheet:    r.sheet,
			Field:    field,
			Value:    c.String(),
			Message:  "invalid date, value ignored",
			Severity: SeverityWarning,
		})
		return nil
	}
	return &t
}

// Side returns buy or sell, or "" when the cell is empty or unknown.
func (r *RowReader) Side(field string) Side {
	c := r.cell(field)
	if c.IsEmpty() {
		return ""
	}
	s, ok := ParseSide(c.String())
	if !ok {
		r.fail(field, c.String(), "must be one of: buy, sell")
		return ""
	}
	return s
}

// CashType returns the canonical cash type, or "" when unknown.
func (r *RowReader) CashType(field string) CashType {
	c := r.cell(field)
	if c.IsEmpty() {
		return ""
	}
	t, ok := ParseCashType(c.String())
	if !ok {
		r.fail(field, c.String(), "must be one of: deposit, withdrawal, dividend, interest, fee, tax, bonus, transfer, adjustment")
		return ""
	}
	return t
}

// OrderType returns the order type and the side implied by spellings such as "sell stop".
func (r *RowReader) OrderType(field string) (OrderType, Side) {
	c := r.cell(field)
	if c.IsEmpty() {
		return "", ""
	}
	t, side, ok := ParseOrderType(c.String())
	if !ok {
		r.fail(field, c.String(), "must be one of: market, limit, stop, stop_limit")
		return "", ""
	}
	return t, side
}

func (r *RowReader) fail(field, value, msg string) {
	r.failures = append(r.failures, FieldError{Field: field, Value: value, Message: msg})
}

// transformRow builds and validates one record. On failure it returns a
// RowValidationError whose fields follow the kind's field order.
func transformRow(b *binding, v *Validator, sheet string, row Row) (Record, []RowError, error) {
	r := newRowReader(b, sheet, row)
	rec := b.def.Build(r)

	failures := r.failures
	for _, fe := range v.Check(rec) {
		if slices.ContainsFunc(failures, func(f FieldError) bool { return f.Field == fe.Field }) {
			continue
		}
		fe.Value = r.Raw(fe.Field)
		failures = append(failures, fe)
	}

	if len(failures) == 0 {
		return rec, r.warnings, nil
	}

	order := make(map[string]int, len(b.def.Fields))
	for i, f := range b.def.Fields {
		order[f.Name] = i
	}
	slices.SortStableFunc(failures, func(a, c FieldError) int {
		return order[a.Field] - order[c.Field]
	})

	return nil, r.warnings, &RowValidationError{
		Sheet:  sheet,
		Row:    row.Number,
		Kind:   b.def.Kind,
		Fields: failures,
	}
}
