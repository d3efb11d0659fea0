package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustKind(t *testing.T, kind RecordKind) KindDefinition {
	t.Helper()
	def, ok := Get(kind)
	if !ok {
		t.Fatalf("kind %q not registered", kind)
	}
	return def
}

func TestBindHeader(t *testing.T) {
	def := mustKind(t, KindPosition)
	header := textRow(1, "Instrument", "Direction", "Qty", "Entry Price", "Open Time", "Symbol", "Notes").Cells
	header = append(header, NumberCell(42))

	b := bindHeader(def, header)

	want := map[string]int{
		"symbol":    0,
		"side":      1,
		"volume":    2,
		"openPrice": 3,
		"openTime":  4,
		"comment":   6,
	}
	if b.matched() != len(want) {
		t.Errorf("matched = %d, want %d (cols %v)", b.matched(), len(want), b.cols)
	}
	for field, col := range want {
		if got, ok := b.cols[field]; !ok || got != col {
			t.Errorf("cols[%q] = %d, %v, want %d", field, got, ok, col)
		}
	}
}

func TestTransformRow_Position(t *testing.T) {
	b := positionalBinding(mustKind(t, KindPosition))
	row := Row{Number: 2, Cells: []Cell{
		TextCell("aapl"),
		NumberCell(100),
		TextCell("Buy"),
		NumberCell(150.25),
		TextCell("2024-01-01"),
	}}

	rec, warnings, err := transformRow(b, NewValidator(), "OPEN POSITIONS", row)
	if err != nil {
		t.Fatalf("transformRow failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	pos, ok := rec.(*Position)
	if !ok {
		t.Fatalf("record = %T, want *Position", rec)
	}
	if pos.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", pos.Symbol)
	}
	if pos.Side != SideBuy {
		t.Errorf("Side = %q, want buy", pos.Side)
	}
	if !pos.Volume.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Volume = %s, want 100", pos.Volume)
	}
	if !pos.OpenPrice.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("OpenPrice = %s, want 150.25", pos.OpenPrice)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if pos.OpenTime == nil || !pos.OpenTime.Equal(want) {
		t.Errorf("OpenTime = %v, want %v", pos.OpenTime, want)
	}
	if pos.ClosePrice != nil {
		t.Errorf("ClosePrice = %v, want nil", pos.ClosePrice)
	}
}

func TestTransformRow_InvalidPosition(t *testing.T) {
	b := positionalBinding(mustKind(t, KindPosition))
	row := Row{Number: 3, Cells: []Cell{
		TextCell(""),
		NumberCell(0),
		TextCell("BUY"),
		NumberCell(0),
		TextCell(""),
	}}

	rec, _, err := transformRow(b, NewValidator(), "OPEN POSITIONS", row)
	if rec != nil {
		t.Errorf("record = %v, want nil", rec)
	}

	var rve *RowValidationError
	if !errors.As(err, &rve) {
		t.Fatalf("error = %v, want RowValidationError", err)
	}

	var fields []string
	for _, f := range rve.Fields {
		fields = append(fields, f.Field)
	}
	wantFields := []string{"symbol", "volume", "openPrice"}
	if len(fields) != len(wantFields) {
		t.Fatalf("fields = %v, want %v", fields, wantFields)
	}
	for i := range wantFields {
		if fields[i] != wantFields[i] {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i], wantFields[i])
		}
	}

	entry := rve.RowError()
	if entry.Row != 3 {
		t.Errorf("RowError().Row = %d, want 3", entry.Row)
	}
	if entry.Field != "symbol" {
		t.Errorf("RowError().Field = %q, want symbol", entry.Field)
	}
	if entry.Severity != SeverityError {
		t.Errorf("RowError().Severity = %q, want error", entry.Severity)
	}
	if rve.Fields[1].Value != "0" {
		t.Errorf("volume value = %q, want %q", rve.Fields[1].Value, "0")
	}
}

func TestTransformRow_UnknownSide(t *testing.T) {
	b := positionalBinding(mustKind(t, KindPosition))
	row := textRow(4, "MSFT", "10", "sideways", "400")

	_, _, err := transformRow(b, NewValidator(), "Positions", row)

	var rve *RowValidationError
	if !errors.As(err, &rve) {
		t.Fatalf("error = %v, want RowValidationError", err)
	}
	if len(rve.Fields) != 1 {
		t.Fatalf("fields = %+v, want exactly one", rve.Fields)
	}
	if rve.Fields[0].Field != "side" || rve.Fields[0].Value != "sideways" {
		t.Errorf("field = %+v, want side=sideways", rve.Fields[0])
	}
}

func TestTransformRow_InvalidDateIsWarning(t *testing.T) {
	b := positionalBinding(mustKind(t, KindPosition))
	row := textRow(5, "MSFT", "10", "sell", "400", "yesterday")

	rec, warnings, err := transformRow(b, NewValidator(), "Positions", row)
	if err != nil {
		t.Fatalf("transformRow failed: %v", err)
	}
	if got := rec.(*Position).OpenTime; got != nil {
		t.Errorf("OpenTime = %v, want nil", got)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	if warnings[0].Field != "openTime" || warnings[0].Severity != SeverityWarning {
		t.Errorf("warning = %+v, want openTime warning", warnings[0])
	}
}

func TestTransformRow_CashDeposit(t *testing.T) {
	b := positionalBinding(mustKind(t, KindCashOperation))
	row := textRow(2, "WPŁATA", "1 000,50", "2024-01-05", "Wpłata środków", "pln")

	rec, _, err := transformRow(b, NewValidator(), "Operacje gotówkowe", row)
	if err != nil {
		t.Fatalf("transformRow failed: %v", err)
	}
	op := rec.(*CashOperation)
	if op.Type != CashDeposit {
		t.Errorf("Type = %q, want %q", op.Type, CashDeposit)
	}
	if !op.Amount.Equal(decimal.RequireFromString("1000.50")) {
		t.Errorf("Amount = %s, want 1000.50", op.Amount)
	}
	if op.Currency != "PLN" {
		t.Errorf("Currency = %q, want PLN", op.Currency)
	}
}

func TestTransformRow_CashValidation(t *testing.T) {
	tests := []struct {
		name      string
		row       Row
		wantField string
	}{
		{"zero amount", textRow(2, "deposit", "0", "", "x"), "amount"},
		{"missing comment", textRow(3, "fee", "-1", "", ""), "comment"},
		{"unknown type", textRow(4, "lottery", "5", "", "x"), "type"},
		{"bad currency", textRow(5, "tax", "-2", "", "x", "ZZZ"), "currency"},
	}

	b := positionalBinding(mustKind(t, KindCashOperation))
	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := transformRow(b, v, "Cash", tt.row)
			var rve *RowValidationError
			if !errors.As(err, &rve) {
				t.Fatalf("error = %v, want RowValidationError", err)
			}
			if got := rve.RowError().Field; got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestTransformRow_PendingOrder(t *testing.T) {
	b := positionalBinding(mustKind(t, KindPendingOrder))
	v := NewValidator()

	rec, _, err := transformRow(b, v, "Pending Orders", textRow(2, "eurusd", "buy limit", "", "1", "1.0500"))
	if err != nil {
		t.Fatalf("transformRow failed: %v", err)
	}
	order := rec.(*PendingOrder)
	if order.Type != OrderLimit || order.Side != SideBuy {
		t.Errorf("Type, Side = %q, %q, want limit, buy", order.Type, order.Side)
	}

	if _, _, err := transformRow(b, v, "Pending Orders", textRow(3, "EURUSD", "market", "sell", "1", "")); err != nil {
		t.Errorf("market order without price: %v", err)
	}

	_, _, err = transformRow(b, v, "Pending Orders", textRow(4, "EURUSD", "limit", "sell", "1", "0"))
	var rve *RowValidationError
	if !errors.As(err, &rve) {
		t.Fatalf("limit order without price: error = %v, want RowValidationError", err)
	}
	if got := rve.RowError().Field; got != "price" {
		t.Errorf("field = %q, want price", got)
	}
}
