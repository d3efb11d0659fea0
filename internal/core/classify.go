package core

import (
	"strings"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 10

// minHeaderMatches is how many known column names a row needs to count as a header.
const minHeaderMatches = 2

// sheetPlan is the classifier's decision for one sheet.
type sheetPlan struct {
	sheet string

	// kind is KindUnknown for unclassified sheets and for mixed sheets.
	kind     RecordKind
	bindings map[RecordKind]*binding

	// mixed sheets carry position and cash rows distinguished by typeCol.
	mixed   bool
	typeCol int

	headerRow int
	data      []Row
}

// kindFor returns the kind and binding for one data row, or ok=false when the
// row cannot be classified.
func (p *sheetPlan) kindFor(row Row) (RecordKind, *binding, bool) {
	if !p.mixed {
		if p.kind == KindUnknown {
			return KindUnknown, nil, false
		}
		return p.kind, p.bindings[p.kind], true
	}

	var raw string
	if p.typeCol < len(row.Cells) {
		raw = row.Cells[p.typeCol].String()
	}
	switch {
	case cashWord(raw):
		return KindCashOperation, p.bindings[KindCashOperation], true
	case tradeWord(raw):
		return KindPosition, p.bindings[KindPosition], true
	default:
		return KindUnknown, nil, false
	}
}

// overrideKind maps an importType override to a record kind.
func overrideKind(t ImportType) RecordKind {
	switch t {
	case ImportPositions:
		return KindPosition
	case ImportCashOperations:
		return KindCashOperation
	case ImportPendingOrders:
		return KindPendingOrder
	default:
		return KindUnknown
	}
}

// sheetNameOrder is the order in which name vocabularies are tried. "cash
// operations" must not fall through to a generic match, so cash goes first.
var sheetNameOrder = []RecordKind{KindCashOperation, KindPendingOrder, KindPosition}

// kindFromSheetName matches the sheet name against each kind's vocabulary.
func kindFromSheetName(name string) RecordKind {
	folded := foldKey(name)
	if folded == "" {
		return KindUnknown
	}
	for _, kind := range sheetNameOrder {
		def, ok := Get(kind)
		if !ok {
			continue
		}
		for _, word := range def.SheetVocabulary {
			if strings.Contains(folded, foldKey(word)) {
				return kind
			}
		}
	}
	return KindUnknown
}

// kindFromHeader guesses the kind from bound header columns. A bare "Price"
// column binds both positions and orders; order-only columns decide it.
func kindFromHeader(bindings map[RecordKind]*binding) RecordKind {
	if b := bindings[KindPosition]; b != nil && b.has("openPrice") && !orderHeader(b, bindings[KindPendingOrder]) {
		return KindPosition
	}
	if b := bindings[KindCashOperation]; b != nil && b.has("amount") && b.has("type") {
		return KindCashOperation
	}
	if b := bindings[KindPendingOrder]; b != nil && (b.has("orderId") || b.has("price")) {
		return KindPendingOrder
	}
	return KindUnknown
}

func orderHeader(pos, order *binding) bool {
	if order == nil || !order.has("price") || pos.cols["openPrice"] != order.cols["price"] {
		return false
	}
	return order.has("orderId") || order.has("stopLoss") || order.has("takeProfit")
}

// findHeader scans the top of the sheet for the row binding the most fields
// of any candidate kind. It returns -1 when no row qualifies.
func findHeader(rows []Row, kinds []RecordKind) (int, map[RecordKind]*binding) {
	bestIdx, bestScore := -1, 0
	var best map[RecordKind]*binding

	limit := min(len(rows), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		bindings := make(map[RecordKind]*binding, len(kinds))
		score := 0
		for _, kind := range kinds {
			def, ok := Get(kind)
			if !ok {
				continue
			}
			b := bindHeader(def, rows[i].Cells)
			bindings[kind] = b
			score = max(score, b.matched())
		}
		if score >= minHeaderMatches && score > bestScore {
			bestIdx, bestScore, best = i, score, bindings
		}
	}
	return bestIdx, best
}

// classifySheet decides the record kind of a sheet and how its columns bind.
//
// The importType override wins, then the sheet name, then the header. With
// hasHeaders=false, or when no header row is found, the kind's positional
// column order applies and every row is data.
func classifySheet(sheet Sheet, override ImportType, hasHeaders bool) *sheetPlan {
	plan := &sheetPlan{
		sheet:     sheet.Name,
		kind:      overrideKind(override),
		bindings:  make(map[RecordKind]*binding),
		headerRow: -1,
		data:      sheet.Rows,
	}
	if plan.kind == KindUnknown {
		plan.kind = kindFromSheetName(sheet.Name)
	}

	if hasHeaders {
		candidates := AllKinds
		if plan.kind != KindUnknown {
			candidates = []RecordKind{plan.kind}
		}
		idx, bindings := findHeader(sheet.Rows, candidates)
		if idx >= 0 {
			plan.headerRow = idx
			plan.data = sheet.Rows[idx+1:]
			if plan.kind == KindUnknown {
				plan.kind = kindFromHeader(bindings)
			}
			if b := bindings[plan.kind]; b != nil {
				plan.bindings[plan.kind] = b
			}
			if override == ImportAuto || override == "" {
				detectMixed(plan, sheet.Rows[idx].Cells)
			}
		}
	}

	if plan.kind != KindUnknown && plan.bindings[plan.kind] == nil {
		def, _ := Get(plan.kind)
		plan.bindings[plan.kind] = positionalBinding(def)
	}
	return plan
}

// detectMixed marks a sheet as mixed when its type column carries both
// trade directions and cash movement words.
func detectMixed(plan *sheetPlan, header []Cell) {
	if plan.kind != KindPosition && plan.kind != KindCashOperation {
		return
	}
	posDef, ok1 := Get(KindPosition)
	cashDef, ok2 := Get(KindCashOperation)
	if !ok1 || !ok2 {
		return
	}

	pos := bindHeader(posDef, header)
	cash := bindHeader(cashDef, header)
	col, ok := cash.cols["type"]
	if !ok || pos.cols["side"] != col || !pos.has("side") {
		return
	}

	var sawCash, sawTrade bool
	for _, row := range plan.data {
		if col >= len(row.Cells) {
			continue
		}
		raw := row.Cells[col].String()
		sawCash = sawCash || cashWord(raw)
		sawTrade = sawTrade || tradeWord(raw)
		if sawCash && sawTrade {
			break
		}
	}
	if !sawCash || !sawTrade {
		return
	}

	plan.mixed = true
	plan.kind = KindUnknown
	plan.typeCol = col
	plan.bindings[KindPosition] = pos
	plan.bindings[KindCashOperation] = cash
}
