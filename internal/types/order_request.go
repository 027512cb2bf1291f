package types

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type OrderRequestType string

type OrderRequestStatus string

type OrderResponseErrorCode string

const (
	OrderRequestTypeSubmit OrderRequestType = "SUBMIT"
	OrderRequestTypeUpdate OrderRequestType = "UPDATE"
	OrderRequestTypeCancel OrderRequestType = "CANCEL"
)

const (
	OrderRequestStatusUnprocessed OrderRequestStatus = "UNPROCESSED"
	OrderRequestStatusProcessing  OrderRequestStatus = "PROCESSING"
	OrderRequestStatusProcessed   OrderRequestStatus = "PROCESSED"
	OrderRequestStatusError       OrderRequestStatus = "ERROR"
)

const (
	OrderResponseErrorNone                          OrderResponseErrorCode = "NONE"
	OrderResponseErrorProcessingError               OrderResponseErrorCode = "PROCESSING_ERROR"
	OrderResponseErrorOrderAlreadyExists            OrderResponseErrorCode = "ORDER_ALREADY_EXISTS"
	OrderResponseErrorInsufficientBuyingPower       OrderResponseErrorCode = "INSUFFICIENT_BUYING_POWER"
	OrderResponseErrorBrokerageModelRefusedToSubmit OrderResponseErrorCode = "BROKERAGE_MODEL_REFUSED_TO_SUBMIT_ORDER"
	OrderResponseErrorBrokerageModelRefusedToUpdate OrderResponseErrorCode = "BROKERAGE_MODEL_REFUSED_TO_UPDATE_ORDER"
	OrderResponseErrorBrokerageFailedToSubmit       OrderResponseErrorCode = "BROKERAGE_FAILED_TO_SUBMIT_ORDER"
	OrderResponseErrorBrokerageFailedToUpdate       OrderResponseErrorCode = "BROKERAGE_FAILED_TO_UPDATE_ORDER"
	OrderResponseErrorBrokerageFailedToCancel       OrderResponseErrorCode = "BROKERAGE_FAILED_TO_CANCEL_ORDER"
	OrderResponseErrorInvalidOrderStatus            OrderResponseErrorCode = "INVALID_ORDER_STATUS"
	OrderResponseErrorUnableToFindOrder             OrderResponseErrorCode = "UNABLE_TO_FIND_ORDER"
	OrderResponseErrorOrderQuantityZero             OrderResponseErrorCode = "ORDER_QUANTITY_ZERO"
	OrderResponseErrorMissingSecurity               OrderResponseErrorCode = "MISSING_SECURITY"
	OrderResponseErrorAlgorithmWarmingUp            OrderResponseErrorCode = "ALGORITHM_WARMING_UP"
	OrderResponseErrorInvalidRequest                OrderResponseErrorCode = "INVALID_REQUEST"
	OrderResponseErrorRequestCanceled               OrderResponseErrorCode = "REQUEST_CANCELED"
	OrderResponseErrorNonTradableSecurity           OrderResponseErrorCode = "NON_TRADABLE_SECURITY"
)

// OrderResponse is the outcome of processing one order request.
type OrderResponse struct {
	OrderID      int                    `yaml:"order_id" json:"order_id"`
	ErrorCode    OrderResponseErrorCode `yaml:"error_code" json:"error_code"`
	ErrorMessage string                 `yaml:"error_message" json:"error_message"`
	IsProcessed  bool                   `yaml:"is_processed" json:"is_processed"`
}

// UnprocessedResponse is the response of a request nobody has looked at yet.
func UnprocessedResponse(orderID int) OrderResponse {
	return OrderResponse{OrderID: orderID, ErrorCode: OrderResponseErrorNone, ErrorMessage: "", IsProcessed: false}
}

// SuccessResponse marks a request as accepted.
func SuccessResponse(orderID int) OrderResponse {
	return OrderResponse{OrderID: orderID, ErrorCode: OrderResponseErrorNone, ErrorMessage: "", IsProcessed: true}
}

// ErrorResponse marks a request as rejected.
func ErrorResponse(orderID int, code OrderResponseErrorCode, message string) OrderResponse {
	return OrderResponse{OrderID: orderID, ErrorCode: code, ErrorMessage: message, IsProcessed: true}
}

func (r OrderResponse) IsSuccess() bool {
	return r.IsProcessed && r.ErrorCode == OrderResponseErrorNone
}

func (r OrderResponse) IsError() bool {
	return r.IsProcessed && r.ErrorCode != OrderResponseErrorNone
}

// OrderRequest is a submit, update or cancel request.
type OrderRequest interface {
	RequestType() OrderRequestType
	Base() *OrderRequestBase
}

// OrderRequestBase holds the fields shared by every request. Response and
// status are written by the transaction handler and read by the caller.
type OrderRequestBase struct {
	OrderID int       `yaml:"order_id" json:"order_id"`
	Time    time.Time `yaml:"time" json:"time"`
	Tag     string    `yaml:"tag" json:"tag"`

	mu       sync.Mutex
	status   OrderRequestStatus
	response OrderResponse
	done     chan struct{}
}

func (b *OrderRequestBase) init(orderID int, utcTime time.Time, tag string) {
	b.OrderID = orderID
	b.Time = utcTime
	b.Tag = tag
	b.status = OrderRequestStatusUnprocessed
	b.response = UnprocessedResponse(orderID)
	b.done = make(chan struct{})
}

// AssignOrderID sets the id of a submit request before it is queued.
func (b *OrderRequestBase) AssignOrderID(orderID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.OrderID = orderID
	b.response.OrderID = orderID
}

// Status returns the processing status of the request.
func (b *OrderRequestBase) Status() OrderRequestStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.status
}

// Response returns the current response.
func (b *OrderRequestBase) Response() OrderResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.response
}

// SetResponse records the response. Processed and Error statuses release Done.
func (b *OrderRequestBase) SetResponse(response OrderResponse, status OrderRequestStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.response = response
	b.status = status

	if status == OrderRequestStatusProcessed || status == OrderRequestStatusError {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}
}

// Done is closed once the request has been processed or rejected.
func (b *OrderRequestBase) Done() <-chan struct{} {
	return b.done
}

// SubmitOrderRequest asks for a new order.
type SubmitOrderRequest struct {
	OrderRequestBase
	Symbol      Symbol
	Type        OrderType
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
}

// NewSubmitOrderRequest builds a submit request. The order id is assigned by the transaction handler.
func NewSubmitOrderRequest(orderType OrderType, symbol Symbol, quantity, stopPrice, limitPrice decimal.Decimal, utcTime time.Time, tag string) *SubmitOrderRequest {
	//nolint:exhaustruct
	r := &SubmitOrderRequest{
		Symbol:      symbol,
		Type:        orderType,
		Quantity:    quantity,
		LimitPrice:  limitPrice,
		StopPrice:   stopPrice,
		TimeInForce: TimeInForceGoodTilCanceled,
	}
	r.init(0, utcTime, tag)

	return r
}

func (r *SubmitOrderRequest) RequestType() OrderRequestType { return OrderRequestTypeSubmit }
func (r *SubmitOrderRequest) Base() *OrderRequestBase       { return &r.OrderRequestBase }

// UpdateOrderFields lists the fields an update may change. Unset fields are left alone.
type UpdateOrderFields struct {
	Quantity   optional.Option[decimal.Decimal]
	LimitPrice optional.Option[decimal.Decimal]
	StopPrice  optional.Option[decimal.Decimal]
	Tag        optional.Option[string]
}

// UpdateOrderRequest changes an open order.
type UpdateOrderRequest struct {
	OrderRequestBase
	UpdateOrderFields
}

func NewUpdateOrderRequest(orderID int, utcTime time.Time, fields UpdateOrderFields) *UpdateOrderRequest {
	tag := ""
	if fields.Tag.IsSome() {
		tag = fields.Tag.Unwrap()
	}

	//nolint:exhaustruct
	r := &UpdateOrderRequest{UpdateOrderFields: fields}
	r.init(orderID, utcTime, tag)

	return r
}

func (r *UpdateOrderRequest) RequestType() OrderRequestType { return OrderRequestTypeUpdate }
func (r *UpdateOrderRequest) Base() *OrderRequestBase       { return &r.OrderRequestBase }

// CancelOrderRequest cancels an open order.
type CancelOrderRequest struct {
	OrderRequestBase
}

func NewCancelOrderRequest(orderID int, utcTime time.Time, tag string) *CancelOrderRequest {
	r := &CancelOrderRequest{} //nolint:exhaustruct
	r.init(orderID, utcTime, tag)

	return r
}

func (r *CancelOrderRequest) RequestType() OrderRequestType { return OrderRequestTypeCancel }
func (r *CancelOrderRequest) Base() *OrderRequestBase       { return &r.OrderRequestBase }
