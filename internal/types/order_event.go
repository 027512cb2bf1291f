package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent reports a change of an order: an acknowledgement, a fill or a
// rejection. Rejections and status flips carry a zero fill.
type OrderEvent struct {
	ID                int             `yaml:"id" json:"id" csv:"id"`
	OrderID           int             `yaml:"order_id" json:"order_id" csv:"order_id"`
	Symbol            Symbol          `yaml:"symbol" json:"symbol" csv:"-"`
	UTCTime           time.Time       `yaml:"utc_time" json:"utc_time" csv:"utc_time"`
	Status            OrderStatus     `yaml:"status" json:"status" csv:"status"`
	Direction         OrderDirection  `yaml:"direction" json:"direction" csv:"direction"`
	FillPrice         decimal.Decimal `yaml:"fill_price" json:"fill_price" csv:"fill_price"`
	FillPriceCurrency string          `yaml:"fill_price_currency" json:"fill_price_currency" csv:"fill_price_currency"`
	FillQuantity      decimal.Decimal `yaml:"fill_quantity" json:"fill_quantity" csv:"fill_quantity"`
	OrderFee          decimal.Decimal `yaml:"order_fee" json:"order_fee" csv:"order_fee"`
	FeeCurrency       string          `yaml:"fee_currency" json:"fee_currency" csv:"fee_currency"`
	Message           string          `yaml:"message" json:"message" csv:"message"`
	IsAssignment      bool            `yaml:"is_assignment" json:"is_assignment" csv:"is_assignment"`
	// Quantity, LimitPrice and StopPrice mirror the order when the event was applied.
	Quantity   decimal.Decimal `yaml:"quantity" json:"quantity" csv:"quantity"`
	LimitPrice decimal.Decimal `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	StopPrice  decimal.Decimal `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
}

// NewOrderEvent builds a zero-fill event carrying the order's current status.
func NewOrderEvent(order *Order, utcTime time.Time, fee decimal.Decimal, message string) OrderEvent {
	return OrderEvent{
		ID:                0,
		OrderID:           order.ID,
		Symbol:            order.Symbol,
		UTCTime:           utcTime,
		Status:            order.Status,
		Direction:         order.Direction(),
		FillPrice:         decimal.Zero,
		FillPriceCurrency: order.PriceCurrency,
		FillQuantity:      decimal.Zero,
		OrderFee:          fee,
		FeeCurrency:       order.PriceCurrency,
		Message:           message,
		IsAssignment:      false,
		Quantity:          order.Quantity,
		LimitPrice:        order.LimitPrice,
		StopPrice:         order.StopPrice,
	}
}

// NewFillEvent builds an event for a fill of the given size and price.
func NewFillEvent(order *Order, utcTime time.Time, status OrderStatus, fillPrice, fillQuantity, fee decimal.Decimal) OrderEvent {
	event := NewOrderEvent(order, utcTime, fee, "")
	event.Status = status
	event.FillPrice = fillPrice
	event.FillQuantity = fillQuantity

	return event
}

// FillValue returns |FillQuantity| * FillPrice.
func (e OrderEvent) FillValue() decimal.Decimal {
	return e.FillQuantity.Abs().Mul(e.FillPrice)
}

func (e OrderEvent) String() string {
	s := fmt.Sprintf("order %d %s %s", e.OrderID, e.Symbol.Ticker, e.Status)
	if !e.FillQuantity.IsZero() {
		s += fmt.Sprintf(" fill %s @ %s fee %s", e.FillQuantity, e.FillPrice, e.OrderFee)
	}

	if e.Message != "" {
		s += ": " + e.Message
	}

	return s
}
