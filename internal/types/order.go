package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderType string

type OrderStatus string

type OrderDirection string

type TimeInForce string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
)

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusNone            OrderStatus = "NONE"
	OrderStatusInvalid         OrderStatus = "INVALID"
	OrderStatusCancelPending   OrderStatus = "CANCEL_PENDING"
	OrderStatusUpdateSubmitted OrderStatus = "UPDATE_SUBMITTED"
)

const (
	OrderDirectionBuy  OrderDirection = "BUY"
	OrderDirectionSell OrderDirection = "SELL"
	OrderDirectionHold OrderDirection = "HOLD"
)

const (
	TimeInForceGoodTilCanceled TimeInForce = "GTC"
	TimeInForceDay             TimeInForce = "DAY"
)

// IsClosed reports whether the status is terminal: Filled, Canceled or Invalid.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusInvalid
}

// IsOpen reports whether the order can still change.
func (s OrderStatus) IsOpen() bool {
	return !s.IsClosed()
}

// IsFill reports whether the status carries a fill.
func (s OrderStatus) IsFill() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// Order is the engine-side state of an order. Only the transaction handler
// mutates it; everything else works on clones.
type Order struct {
	ID            int             `yaml:"id" json:"id" csv:"id" validate:"gt=0"`
	Symbol        Symbol          `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Type          OrderType       `yaml:"type" json:"type" csv:"type" validate:"required,oneof=MARKET LIMIT STOP_MARKET STOP_LIMIT"`
	Quantity      decimal.Decimal `yaml:"quantity" json:"quantity" csv:"quantity"`
	LimitPrice    decimal.Decimal `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	StopPrice     decimal.Decimal `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
	Status        OrderStatus     `yaml:"status" json:"status" csv:"status" validate:"required"`
	Time          time.Time       `yaml:"time" json:"time" csv:"time" validate:"required"`
	TimeInForce   TimeInForce     `yaml:"time_in_force" json:"time_in_force" csv:"time_in_force" validate:"omitempty,oneof=GTC DAY"`
	Tag           string          `yaml:"tag" json:"tag" csv:"tag"`
	Price         decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	PriceCurrency string          `yaml:"price_currency" json:"price_currency" csv:"price_currency"`
	BrokerIDs     []string        `yaml:"broker_ids" json:"broker_ids" csv:"-"`
	// LastFillTime is set by Filled and PartiallyFilled events.
	LastFillTime optional.Option[time.Time] `yaml:"last_fill_time" json:"last_fill_time" csv:"-"`
	// LastUpdateTime is set by submission events that follow an update request.
	LastUpdateTime optional.Option[time.Time] `yaml:"last_update_time" json:"last_update_time" csv:"-"`
	// CanceledTime is set by the Canceled event.
	CanceledTime optional.Option[time.Time] `yaml:"canceled_time" json:"canceled_time" csv:"-"`

	eventSequence int
}

// NewOrder builds an order in the New status from a submit request.
func NewOrder(request *SubmitOrderRequest) *Order {
	return &Order{
		ID:             request.OrderID,
		Symbol:         request.Symbol,
		Type:           request.Type,
		Quantity:       request.Quantity,
		LimitPrice:     request.LimitPrice,
		StopPrice:      request.StopPrice,
		Status:         OrderStatusNew,
		Time:           request.Time,
		TimeInForce:    request.TimeInForce,
		Tag:            request.Tag,
		Price:          decimal.Zero,
		PriceCurrency:  "",
		BrokerIDs:      nil,
		LastFillTime:   optional.None[time.Time](),
		LastUpdateTime: optional.None[time.Time](),
		CanceledTime:   optional.None[time.Time](),
		eventSequence:  0,
	}
}

// Direction derives the side from the sign of the quantity.
func (o *Order) Direction() OrderDirection {
	switch o.Quantity.Sign() {
	case 1:
		return OrderDirectionBuy
	case -1:
		return OrderDirectionSell
	default:
		return OrderDirectionHold
	}
}

// AbsoluteQuantity returns |Quantity|.
func (o *Order) AbsoluteQuantity() decimal.Decimal {
	return o.Quantity.Abs()
}

// HasLimitPrice reports whether the order type carries a limit price.
func (o *Order) HasLimitPrice() bool {
	return o.Type == OrderTypeLimit || o.Type == OrderTypeStopLimit
}

// HasStopPrice reports whether the order type carries a stop price.
func (o *Order) HasStopPrice() bool {
	return o.Type == OrderTypeStopMarket || o.Type == OrderTypeStopLimit
}

// DefaultTag describes the order when the caller left the tag empty.
func (o *Order) DefaultTag() string {
	switch o.Type {
	case OrderTypeLimit:
		return fmt.Sprintf("Limit at %s", o.LimitPrice.String())
	case OrderTypeStopMarket:
		return fmt.Sprintf("Stop at %s", o.StopPrice.String())
	case OrderTypeStopLimit:
		return fmt.Sprintf("Stop %s limit %s", o.StopPrice.String(), o.LimitPrice.String())
	default:
		return ""
	}
}

// ApplyUpdate copies the set fields of an update request onto the order.
func (o *Order) ApplyUpdate(request *UpdateOrderRequest) {
	fields := request.UpdateOrderFields

	if fields.Quantity.IsSome() {
		o.Quantity = fields.Quantity.Unwrap()
	}

	if fields.LimitPrice.IsSome() && o.HasLimitPrice() {
		o.LimitPrice = fields.LimitPrice.Unwrap()
	}

	if fields.StopPrice.IsSome() && o.HasStopPrice() {
		o.StopPrice = fields.StopPrice.Unwrap()
	}

	if fields.Tag.IsSome() {
		o.Tag = fields.Tag.Unwrap()
	}
}

// NextEventID returns a per-order increasing id for order events.
func (o *Order) NextEventID() int {
	o.eventSequence++

	return o.eventSequence
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	if o.BrokerIDs != nil {
		c.BrokerIDs = append([]string(nil), o.BrokerIDs...)
	}

	return &c
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	return nil
}
