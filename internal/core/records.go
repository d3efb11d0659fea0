package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordKind identifies the target table of a row.
type RecordKind string

const (
	KindUnknown       RecordKind = ""
	KindPosition      RecordKind = "position"
	KindCashOperation RecordKind = "cash_operation"
	KindPendingOrder  RecordKind = "pending_order"
)

// AllKinds lists the record kinds in rollback order.
var AllKinds = []RecordKind{KindPosition, KindCashOperation, KindPendingOrder}

// Side is the direction of a trade or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// CashType is the canonical type of a cash operation.
type CashType string

const (
	CashDeposit    CashType = "deposit"
	CashWithdrawal CashType = "withdrawal"
	CashDividend   CashType = "dividend"
	CashInterest   CashType = "interest"
	CashFee        CashType = "fee"
	CashTax        CashType = "tax"
	CashBonus      CashType = "bonus"
	CashTransfer   CashType = "transfer"
	CashAdjustment CashType = "adjustment"
)

// OrderType is the execution type of a pending order.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// RecordBase holds the fields every persisted record carries.
type RecordBase struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"userId"`
	ImportBatchID uuid.UUID `json:"importBatchId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Base gives the writer access to the common fields.
func (b *RecordBase) Base() *RecordBase { return b }

// Record is a validated row ready to persist.
type Record interface {
	Kind() RecordKind
	Base() *RecordBase
	// DedupeKey is the broker-assigned id, or "" when the row has none.
	DedupeKey() string
}

// Position is an open or closed trade.
type Position struct {
	RecordBase
	Symbol     string           `json:"symbol" validate:"required,max=32"`
	Side       Side             `json:"side" validate:"required,oneof=buy sell"`
	Volume     decimal.Decimal  `json:"volume" validate:"gt=0"`
	OpenPrice  decimal.Decimal  `json:"openPrice" validate:"gt=0"`
	OpenTime   *time.Time       `json:"openTime,omitempty"`
	ClosePrice *decimal.Decimal `json:"closePrice,omitempty"`
	CloseTime  *time.Time       `json:"closeTime,omitempty"`
	Commission *decimal.Decimal `json:"commission,omitempty"`
	Swap       *decimal.Decimal `json:"swap,omitempty"`
	Profit     *decimal.Decimal `json:"profit,omitempty"`
	Currency   string           `json:"currency,omitempty" validate:"omitempty,currency"`
	Comment    string           `json:"comment,omitempty"`
	PositionID string           `json:"positionId,omitempty" validate:"max=64"`
}

func (p *Position) Kind() RecordKind  { return KindPosition }
func (p *Position) DedupeKey() string { return p.PositionID }

// CashOperation is a deposit, withdrawal, dividend or similar cash movement.
type CashOperation struct {
	RecordBase
	Type        CashType        `json:"type" validate:"required,oneof=deposit withdrawal dividend interest fee tax bonus transfer adjustment"`
	Amount      decimal.Decimal `json:"amount" validate:"ne=0"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,currency"`
	Time        *time.Time      `json:"time,omitempty"`
	Comment     string          `json:"comment" validate:"required"`
	Symbol      string          `json:"symbol,omitempty" validate:"max=32"`
	OperationID string          `json:"operationId,omitempty" validate:"max=64"`
}

func (c *CashOperation) Kind() RecordKind  { return KindCashOperation }
func (c *CashOperation) DedupeKey() string { return c.OperationID }

// PendingOrder is an order that has not been filled yet.
type PendingOrder struct {
	RecordBase
	Symbol     string           `json:"symbol" validate:"required,max=32"`
	Type       OrderType        `json:"type" validate:"required,oneof=market limit stop stop_limit"`
	Side       Side             `json:"side" validate:"required,oneof=buy sell"`
	Volume     decimal.Decimal  `json:"volume" validate:"gt=0"`
	Price      decimal.Decimal  `json:"price"`
	OpenTime   *time.Time       `json:"openTime,omitempty"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	Comment    string           `json:"comment,omitempty"`
	OrderID    string           `json:"orderId,omitempty" validate:"max=64"`
}

func (o *PendingOrder) Kind() RecordKind  { return KindPendingOrder }
func (o *PendingOrder) DedupeKey() string { return o.OrderID }
