package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderFailed    OrderStatus = "failed"
)

// Order is one checkout attempt for a single report slot. The order id is
// what the gateway echoes back on the success and fail redirects.
type Order struct {
	ID             string      `json:"order_id" gorm:"column:id;primaryKey"`
	RecordID       string      `json:"record_id" gorm:"column:record_id"`
	ProductLine    string      `json:"product_line" gorm:"column:product_line"`
	Slot           string      `json:"slot" gorm:"column:slot"`
	OrderName      string      `json:"order_name" gorm:"column:order_name"`
	Amount         int64       `json:"amount" gorm:"column:amount"`
	OriginalAmount int64       `json:"original_amount" gorm:"column:original_amount"`
	CouponCode     string      `json:"coupon_code,omitempty" gorm:"column:coupon_code"`
	IsDiscount     bool        `json:"is_discount" gorm:"column:is_discount"`
	Provider       string      `json:"provider" gorm:"column:provider"`
	Status         OrderStatus `json:"status" gorm:"column:status"`
	PaymentKey     string      `json:"payment_key,omitempty" gorm:"column:payment_key"`
	Method         string      `json:"method,omitempty" gorm:"column:method"`
	FailureCode    string      `json:"failure_code,omitempty" gorm:"column:failure_code"`
	FailureMessage string      `json:"failure_message,omitempty" gorm:"column:failure_message"`
	CreatedAt      time.Time   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time   `json:"updated_at" gorm:"column:updated_at"`
	ConfirmedAt    *time.Time  `json:"confirmed_at,omitempty" gorm:"column:confirmed_at"`
}

func (Order) TableName() string { return "payment_orders" }

func (o *Order) Confirmed() bool {
	return o.Status == OrderConfirmed
}

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"column:id;primaryKey"`
	Provider        string         `json:"provider" gorm:"column:provider"`
	ProviderEventID string         `json:"provider_event_id" gorm:"column:provider_event_id"`
	EventType       string         `json:"event_type" gorm:"column:event_type"`
	OrderID         string         `json:"order_id" gorm:"column:order_id"`
	Payload         datatypes.JSON `json:"payload" gorm:"column:payload"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"column:received_at"`
	ProcessedAt     *time.Time     `json:"processed_at" gorm:"column:processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeCanceled         = "canceled"
)

// PaymentEvent is the canonical payment event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	OrderID         string
	PaymentKey      string
	Method          string
	Amount          int64
	OccurredAt      time.Time
	RawPayload      []byte
}

type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type Confirmation struct {
	PaymentKey string
	OrderID    string
	Amount     int64
	Method     string
	Status     string
	ApprovedAt time.Time
}

type AdapterConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// GatewayAdapter speaks one payment gateway's API.
type GatewayAdapter interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}

type CreateOrderRequest struct {
	RecordID       string
	ProductLine    string
	Slot           string
	OrderName      string
	Amount         int64
	OriginalAmount int64
	CouponCode     string
	IsDiscount     bool
}

type ConfirmResult struct {
	Order *Order
	// AlreadyConfirmed is true when the order had been confirmed by an
	// earlier redirect or by the webhook.
	AlreadyConfirmed bool
}

type ListOrdersRequest struct {
	Status      OrderStatus
	ProductLine string
	From        *time.Time
	To          *time.Time
	Limit       int
}
