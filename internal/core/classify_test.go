package core

import "testing"

func textRow(number int, values ...string) Row {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = TextCell(v)
	}
	return Row{Number: number, Cells: cells}
}

func TestKindFromSheetName(t *testing.T) {
	tests := []struct {
		name string
		want RecordKind
	}{
		{"OPEN POSITIONS", KindPosition},
		{"Closed Positions", KindPosition},
		{"Pozycje otwarte", KindPosition},
		{"Cash Operations", KindCashOperation},
		{"Operacje gotówkowe", KindCashOperation},
		{"Pending Orders", KindPendingOrder},
		{"Zlecenia oczekujące", KindPendingOrder},
		{"Sheet1", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		if got := kindFromSheetName(tt.name); got != tt.want {
			t.Errorf("kindFromSheetName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestClassifySheet_HeaderBelowTitle(t *testing.T) {
	sheet := Sheet{
		Name: "Sheet1",
		Rows: []Row{
			textRow(1, "Account report"),
			textRow(3, "Symbol", "Type", "Volume", "Open price", "Open time"),
			textRow(4, "EURUSD", "buy", "1.5", "1.0850", "2024-01-02 10:00:00"),
			textRow(5, "GBPUSD", "sell", "2", "1.2700", "2024-01-03 11:00:00"),
		},
	}

	plan := classifySheet(sheet, ImportAuto, true)

	if plan.kind != KindPosition {
		t.Fatalf("kind = %q, want %q", plan.kind, KindPosition)
	}
	if plan.headerRow != 1 {
		t.Errorf("headerRow = %d, want 1", plan.headerRow)
	}
	if len(plan.data) != 2 {
		t.Fatalf("data rows = %d, want 2", len(plan.data))
	}
	if plan.data[0].Number != 4 {
		t.Errorf("first data row = %d, want 4", plan.data[0].Number)
	}
	if plan.mixed {
		t.Error("mixed = true, want false")
	}

	b := plan.bindings[KindPosition]
	if b == nil || b.positional {
		t.Fatalf("binding = %+v, want header binding", b)
	}
	want := map[string]int{"symbol": 0, "side": 1, "volume": 2, "openPrice": 3, "openTime": 4}
	for field, col := range want {
		if got, ok := b.cols[field]; !ok || got != col {
			t.Errorf("cols[%q] = %d, %v, want %d", field, got, ok, col)
		}
	}
}

func TestClassifySheet_NameDecidesKind(t *testing.T) {
	sheet := Sheet{
		Name: "Cash Operations",
		Rows: []Row{
			textRow(1, "ID", "Type", "Time", "Comment", "Symbol", "Amount"),
			textRow(2, "101", "Deposit", "2024-01-05", "Wire", "", "1000"),
		},
	}

	plan := classifySheet(sheet, ImportAuto, true)

	if plan.kind != KindCashOperation {
		t.Fatalf("kind = %q, want %q", plan.kind, KindCashOperation)
	}
	b := plan.bindings[KindCashOperation]
	if got := b.cols["amount"]; got != 5 {
		t.Errorf("cols[amount] = %d, want 5", got)
	}
	if got := b.cols["operationId"]; got != 0 {
		t.Errorf("cols[operationId] = %d, want 0", got)
	}
}

func TestClassifySheet_Override(t *testing.T) {
	sheet := Sheet{
		Name: "Open Positions",
		Rows: []Row{
			textRow(1, "Deposit", "100", "2024-01-01", "first"),
			textRow(2, "Withdrawal", "-50", "2024-01-02", "second"),
		},
	}

	plan := classifySheet(sheet, ImportCashOperations, false)

	if plan.kind != KindCashOperation {
		t.Fatalf("kind = %q, want %q", plan.kind, KindCashOperation)
	}
	if plan.headerRow != -1 {
		t.Errorf("headerRow = %d, want -1", plan.headerRow)
	}
	if len(plan.data) != 2 {
		t.Errorf("data rows = %d, want 2", len(plan.data))
	}
	if b := plan.bindings[KindCashOperation]; b == nil || !b.positional {
		t.Errorf("binding = %+v, want positional", b)
	}
}

func TestClassifySheet_PositionalWhenNoHeaderFound(t *testing.T) {
	sheet := Sheet{
		Name: "OPEN POSITIONS",
		Rows: []Row{
			textRow(1, "AAPL", "100", "BUY", "150", "2024-01-01"),
			textRow(2, "MSFT", "10", "SELL", "400", "2024-01-02"),
		},
	}

	plan := classifySheet(sheet, ImportAuto, true)

	if plan.kind != KindPosition {
		t.Fatalf("kind = %q, want %q", plan.kind, KindPosition)
	}
	if plan.headerRow != -1 {
		t.Errorf("headerRow = %d, want -1", plan.headerRow)
	}
	if len(plan.data) != 2 {
		t.Errorf("data rows = %d, want 2", len(plan.data))
	}
	b := plan.bindings[KindPosition]
	if b == nil || !b.positional {
		t.Fatalf("binding = %+v, want positional", b)
	}
	if got := b.cols["side"]; got != 2 {
		t.Errorf("cols[side] = %d, want 2", got)
	}
}

func TestClassifySheet_HeaderSearchLimit(t *testing.T) {
	var rows []Row
	for i := 1; i <= MaxHeaderSearchRows; i++ {
		rows = append(rows, textRow(i, "note"))
	}
	rows = append(rows, textRow(MaxHeaderSearchRows+1, "Symbol", "Volume", "Open price"))

	plan := classifySheet(Sheet{Name: "Sheet1", Rows: rows}, ImportAuto, true)

	if plan.headerRow != -1 {
		t.Errorf("headerRow = %d, want -1", plan.headerRow)
	}
	if plan.kind != KindUnknown {
		t.Errorf("kind = %q, want unknown", plan.kind)
	}
	if _, _, ok := plan.kindFor(rows[0]); ok {
		t.Error("kindFor on unclassified sheet: ok = true, want false")
	}
}

func TestClassifySheet_Mixed(t *testing.T) {
	sheet := Sheet{
		Name: "History",
		Rows: []Row{
			textRow(1, "Symbol", "Type", "Volume", "Open price", "Amount", "Comment"),
			textRow(2, "AAPL", "BUY", "10", "150", "", ""),
			textRow(3, "", "Deposit", "", "", "1000", "Wire"),
			textRow(4, "", "Lottery", "", "", "5", "?"),
		},
	}

	plan := classifySheet(sheet, ImportAuto, true)

	if !plan.mixed {
		t.Fatal("mixed = false, want true")
	}
	if plan.typeCol != 1 {
		t.Errorf("typeCol = %d, want 1", plan.typeCol)
	}

	tests := []struct {
		row    Row
		want   RecordKind
		wantOK bool
	}{
		{sheet.Rows[1], KindPosition, true},
		{sheet.Rows[2], KindCashOperation, true},
		{sheet.Rows[3], KindUnknown, false},
	}
	for _, tt := range tests {
		kind, b, ok := plan.kindFor(tt.row)
		if kind != tt.want || ok != tt.wantOK {
			t.Errorf("kindFor(row %d) = %q, %v, want %q, %v", tt.row.Number, kind, ok, tt.want, tt.wantOK)
		}
		if ok && b == nil {
			t.Errorf("kindFor(row %d) returned nil binding", tt.row.Number)
		}
	}
}

func TestClassifySheet_OverrideDisablesMixed(t *testing.T) {
	sheet := Sheet{
		Name: "History",
		Rows: []Row{
			textRow(1, "Symbol", "Type", "Volume", "Open price", "Amount", "Comment"),
			textRow(2, "AAPL", "BUY", "10", "150", "", ""),
			textRow(3, "", "Deposit", "", "", "1000", "Wire"),
		},
	}

	plan := classifySheet(sheet, ImportPositions, true)

	if plan.mixed {
		t.Error("mixed = true, want false with an override")
	}
	if plan.kind != KindPosition {
		t.Errorf("kind = %q, want %q", plan.kind, KindPosition)
	}
}

func TestClassifySheet_BarePriceHeader(t *testing.T) {
	tests := []struct {
		name   string
		sheet  string
		header []string
		want   RecordKind
	}{
		{"positions sheet", "Positions", []string{"Symbol", "Side", "Volume", "Price"}, KindPosition},
		{"polish positions", "Pozycje", []string{"Walor", "Kierunek", "Wolumen", "Cena"}, KindPosition},
		{"unnamed position sheet", "Sheet1", []string{"Symbol", "Side", "Volume", "Price"}, KindPosition},
		{"unnamed order sheet", "Sheet1", []string{"Order ID", "Symbol", "Type", "Volume", "Price"}, KindPendingOrder},
		{"orders with stops", "Sheet1", []string{"Symbol", "Type", "Volume", "Price", "SL", "TP"}, KindPendingOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := Sheet{Name: tt.sheet, Rows: []Row{textRow(1, tt.header...)}}
			plan := classifySheet(sheet, ImportAuto, true)
			if plan.kind != tt.want {
				t.Fatalf("kind = %q, want %q", plan.kind, tt.want)
			}
			if tt.want == KindPosition {
				if got, ok := plan.bindings[KindPosition].cols["openPrice"]; !ok || got != 3 {
					t.Errorf("cols[openPrice] = %d, %v, want 3", got, ok)
				}
			}
		})
	}
}
