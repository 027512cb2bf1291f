// Package brokerage defines how the engine talks to a broker and ships a
// simulated broker for backtests.
package brokerage

import (
	"context"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

type EventKind string

const (
	EventOrderStatusChanged     EventKind = "ORDER_STATUS_CHANGED"
	EventAccountChanged         EventKind = "ACCOUNT_CHANGED"
	EventOptionPositionAssigned EventKind = "OPTION_POSITION_ASSIGNED"
	EventMessage                EventKind = "MESSAGE"
)

type MessageLevel string

const (
	MessageInformation MessageLevel = "INFORMATION"
	MessageWarning     MessageLevel = "WARNING"
	MessageError       MessageLevel = "ERROR"
	// MessageDisconnect and MessageReconnect report connectivity changes.
	MessageDisconnect MessageLevel = "DISCONNECT"
	MessageReconnect  MessageLevel = "RECONNECT"
)

// Message is a free-form brokerage notification.
type Message struct {
	Level MessageLevel
	Code  string
	Text  string
}

// Event is one notification pushed by a brokerage. Which field is set
// depends on Kind.
type Event struct {
	Kind EventKind
	// OrderEvents is set for OrderStatusChanged and OptionPositionAssigned.
	OrderEvents []types.OrderEvent
	// Cash is set for AccountChanged.
	Cash    types.CashAmount
	Message Message
}

// OrderStatusChanged wraps order events into a brokerage event.
func OrderStatusChanged(events ...types.OrderEvent) Event {
	return Event{Kind: EventOrderStatusChanged, OrderEvents: events, Cash: types.CashAmount{}, Message: Message{}} //nolint:exhaustruct
}

// Brokerage places orders with a broker. Order methods report whether the
// broker accepted the request; an error means the call itself failed.
type Brokerage interface {
	Name() string
	IsConnected() bool
	// Connect starts pushing events into sink until ctx is done.
	Connect(ctx context.Context, sink chan<- Event) error
	Disconnect() error
	PlaceOrder(order *types.Order) (bool, error)
	UpdateOrder(order *types.Order) (bool, error)
	CancelOrder(order *types.Order) (bool, error)
	GetCashBalance() ([]types.CashAmount, error)
}

// Flusher is implemented by brokerages that hold events their sink had no
// room for. Flush moves held events into the sink and reports how many moved.
type Flusher interface {
	Flush() int
}
