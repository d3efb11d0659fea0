package core

func init() {
	registerPositions()
	registerCashOperations()
	registerPendingOrders()
}

var (
	symbolAliases   = []string{"symbol", "instrument", "ticker", "walor", "instrument symbol", "symbol instrumentu"}
	volumeAliases   = []string{"volume", "quantity", "qty", "lots", "units", "wolumen", "ilość", "ilosc"}
	currencyAliases = []string{"currency", "waluta", "ccy"}
	commentAliases  = []string{"comment", "komentarz", "notes", "note", "remarks"}
)

func registerPositions() {
	Register(KindDefinition{
		Kind:            KindPosition,
		Label:           "Positions",
		SheetVocabulary: []string{"position", "pozycj", "open trades", "closed"},
		Fields: []FieldSpec{
			{Name: "symbol", Aliases: symbolAliases, Type: FieldUpper},
			{Name: "volume", Aliases: volumeAliases, Type: FieldNumeric},
			{Name: "side", Aliases: []string{"side", "type", "direction", "typ", "kierunek", "buy sell"}, Type: FieldEnum},
			{Name: "openPrice", Aliases: []string{"open price", "open rate", "entry price", "price open", "cena otwarcia", "kurs otwarcia", "price", "cena"}, Type: FieldNumeric},
			{Name: "openTime", Aliases: []string{"open time", "open date", "opened", "entry time", "czas otwarcia", "data otwarcia"}, Type: FieldDate},
			{Name: "closePrice", Aliases: []string{"close price", "close rate", "exit price", "cena zamknięcia", "cena zamkniecia", "kurs zamknięcia"}, Type: FieldNumeric},
			{Name: "closeTime", Aliases: []string{"close time", "close date", "closed", "exit time", "czas zamknięcia", "czas zamkniecia", "data zamknięcia"}, Type: FieldDate},
			{Name: "commission", Aliases: []string{"commission", "prowizja", "fees"}, Type: FieldNumeric},
			{Name: "swap", Aliases: []string{"swap", "rollover", "punkty swapowe"}, Type: FieldNumeric},
			{Name: "profit", Aliases: []string{"profit", "gross p l", "net profit", "p l", "pnl", "zysk", "wynik", "zysk strata"}, Type: FieldNumeric},
			{Name: "currency", Aliases: currencyAliases, Type: FieldUpper},
			{Name: "comment", Aliases: commentAliases, Type: FieldText},
			{Name: "positionId", Aliases: []string{"position", "position id", "ticket", "id", "id pozycji", "pozycja", "numer pozycji"}, Type: FieldText},
		},
		Build: buildPosition,
	})
}

func buildPosition(r *RowReader) Record {
	return &Position{
		Symbol:     r.Upper("symbol"),
		Side:       r.Side("side"),
		Volume:     r.Decimal("volume"),
		OpenPrice:  r.Decimal("openPrice"),
		OpenTime:   r.Time("openTime"),
		ClosePrice: r.OptionalDecimal("closePrice"),
		CloseTime:  r.Time("closeTime"),
		Commission: r.OptionalDecimal("commission"),
		Swap:       r.OptionalDecimal("swap"),
		Profit:     r.OptionalDecimal("profit"),
		Currency:   r.Upper("currency"),
		Comment:    r.Text("comment"),
		PositionID: r.Text("positionId"),
	}
}

func registerCashOperations() {
	Register(KindDefinition{
		Kind:            KindCashOperation,
		Label:           "Cash operations",
		SheetVocabulary: []string{"cash", "operac", "operation", "gotówk", "gotowk", "deposit", "transakcje gotówkowe"},
		Fields: []FieldSpec{
			{Name: "type", Aliases: []string{"type", "typ", "operation type", "transaction type", "rodzaj", "rodzaj operacji", "typ operacji"}, Type: FieldEnum},
			{Name: "amount", Aliases: []string{"amount", "kwota", "value", "wartość", "wartosc", "net amount"}, Type: FieldNumeric},
			{Name: "time", Aliases: []string{"time", "date", "czas", "data", "operation time", "data operacji", "booking date"}, Type: FieldDate},
			{Name: "comment", Aliases: []string{"comment", "komentarz", "description", "opis", "tytuł", "tytul", "title", "details"}, Type: FieldText},
			{Name: "currency", Aliases: currencyAliases, Type: FieldUpper},
			{Name: "symbol", Aliases: symbolAliases, Type: FieldUpper},
			{Name: "operationId", Aliases: []string{"id", "operation id", "transaction id", "nr", "numer", "id operacji"}, Type: FieldText},
		},
		Build: buildCashOperation,
	})
}

func buildCashOperation(r *RowReader) Record {
	return &CashOperation{
		Type:        r.CashType("type"),
		Amount:      r.Decimal("amount"),
		Time:        r.Time("time"),
		Comment:     r.Text("comment"),
		Currency:    r.Upper("currency"),
		Symbol:      r.Upper("symbol"),
		OperationID: r.Text("operationId"),
	}
}

func registerPendingOrders() {
	Register(KindDefinition{
		Kind:            KindPendingOrder,
		Label:           "Pending orders",
		SheetVocabulary: []string{"pending", "order", "zlecen", "zleceń"},
		Fields: []FieldSpec{
			{Name: "symbol", Aliases: symbolAliases, Type: FieldUpper},
			{Name: "type", Aliases: []string{"type", "order type", "typ", "typ zlecenia", "rodzaj zlecenia"}, Type: FieldEnum},
			{Name: "side", Aliases: []string{"side", "direction", "kierunek", "buy sell"}, Type: FieldEnum},
			{Name: "volume", Aliases: volumeAliases, Type: FieldNumeric},
			{Name: "price", Aliases: []string{"price", "order price", "limit price", "cena", "cena zlecenia", "limit ceny"}, Type: FieldNumeric},
			{Name: "openTime", Aliases: []string{"open time", "time", "created", "order time", "czas otwarcia", "data zlecenia", "data"}, Type: FieldDate},
			{Name: "stopLoss", Aliases: []string{"sl", "s l", "stop loss"}, Type: FieldNumeric},
			{Name: "takeProfit", Aliases: []string{"tp", "t p", "take profit"}, Type: FieldNumeric},
			{Name: "comment", Aliases: commentAliases, Type: FieldText},
			{Name: "orderId", Aliases: []string{"order", "order id", "id", "nr zlecenia", "numer zlecenia"}, Type: FieldText},
		},
		Build: buildPendingOrder,
	})
}

func buildPendingOrder(r *RowReader) Record {
	orderType, impliedSide := r.OrderType("type")
	side := r.Side("side")
	if side == "" {
		side = impliedSide
	}
	return &PendingOrder{
		Symbol:     r.Upper("symbol"),
		Type:       orderType,
		Side:       side,
		Volume:     r.Decimal("volume"),
		Price:      r.Decimal("price"),
		OpenTime:   r.Time("openTime"),
		StopLoss:   r.OptionalDecimal("stopLoss"),
		TakeProfit: r.OptionalDecimal("takeProfit"),
		Comment:    r.Text("comment"),
		OrderID:    r.Text("orderId"),
	}
}
