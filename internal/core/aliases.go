package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// foldKey normalizes a header or enum spelling for alias lookup: case folded,
// punctuation turned into spaces, parenthesized suffixes such as "(USD)"
// dropped and whitespace collapsed.
func foldKey(s string) string {
	s = CleanCell(s)
	if i := strings.Index(s, "("); i > 0 {
		s = s[:i]
	}
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '/', ':', '\\', '#':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

type aliasTable[T comparable] map[string]T

func newAliasTable[T comparable](groups map[T][]string) aliasTable[T] {
	t := make(aliasTable[T])
	for value, spellings := range groups {
		for _, s := range spellings {
			t[foldKey(s)] = value
		}
	}
	return t
}

func (t aliasTable[T]) lookup(raw string) (T, bool) {
	v, ok := t[foldKey(raw)]
	return v, ok
}

var cashTypeAliases = newAliasTable(map[CashType][]string{
	CashDeposit:    {"deposit", "wpłata", "wplata", "in", "ike deposit", "ikze deposit", "deposit in", "cash in", "wpłata środków"},
	CashWithdrawal: {"withdrawal", "withdraw", "wypłata", "wyplata", "out", "cash out", "wypłata środków"},
	CashDividend:   {"dividend", "divident", "dividends", "dywidenda"},
	CashInterest:   {"interest", "free funds interest", "odsetki", "oprocentowanie"},
	CashFee:        {"fee", "commission", "prowizja", "opłata", "oplata", "swap", "sec fee"},
	CashTax:        {"tax", "withholding tax", "free funds interest tax", "podatek", "podatek u źródła"},
	CashBonus:      {"bonus", "premia", "promotion"},
	CashTransfer:   {"transfer", "przelew", "subaccount transfer", "transfer in", "transfer out"},
	CashAdjustment: {"adjustment", "korekta", "correction", "close trade", "stocks etf purchase", "stocks etf sale", "profit", "loss"},
})

var sideAliases = newAliasTable(map[Side][]string{
	SideBuy:  {"buy", "b", "long", "kupno", "kup", "bought"},
	SideSell: {"sell", "s", "short", "sprzedaż", "sprzedaz", "sprzedaj", "sold"},
})

var orderTypeAliases = newAliasTable(map[OrderType][]string{
	OrderMarket:    {"market", "mkt", "rynkowe", "po cenie rynkowej", "pkc"},
	OrderLimit:     {"limit", "limitowe", "lmt"},
	OrderStop:      {"stop", "stop loss", "stp"},
	OrderStopLimit: {"stop limit", "stoplimit", "stop lmt"},
})

// ParseCashType maps a raw type spelling to its canonical cash type.
func ParseCashType(raw string) (CashType, bool) {
	return cashTypeAliases.lookup(raw)
}

// ParseSide maps a raw side spelling to buy or sell.
func ParseSide(raw string) (Side, bool) {
	return sideAliases.lookup(raw)
}

// ParseOrderType maps a raw order type. Combined spellings such as
// "buy limit" or "sell stop" also yield the side.
func ParseOrderType(raw string) (OrderType, Side, bool) {
	if t, ok := orderTypeAliases.lookup(raw); ok {
		return t, "", true
	}

	words := strings.Fields(foldKey(raw))
	if len(words) < 2 {
		return "", "", false
	}
	side, ok := sideAliases.lookup(words[0])
	if !ok {
		return "", "", false
	}
	t, ok := orderTypeAliases.lookup(strings.Join(words[1:], " "))
	if !ok {
		return "", "", false
	}
	return t, side, true
}

// tradeWord reports whether a type-column value names a trade direction.
func tradeWord(raw string) bool {
	_, ok := sideAliases.lookup(raw)
	return ok
}

// cashWord reports whether a type-column value names a cash movement.
func cashWord(raw string) bool {
	_, ok := cashTypeAliases.lookup(raw)
	return ok
}
