package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification event types
const (
	EventTypeRegistrationConfirm = "REGISTRATION_CONFIRMATION"
	EventTypeOrderConfirm        = "ORDER_CONFIRMATION"
	EventTypeProviderNewOrder    = "PROVIDER_NEW_ORDER"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all notification events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Recipient identifies one mail recipient.
type Recipient struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// PositionData carries one line item inside order events.
type PositionData struct {
	Product  string `json:"product"`
	Provider string `json:"provider"`
	Quantity int    `json:"quantity"`
}

// RegistrationConfirmEvent published after a user registers
type RegistrationConfirmEvent struct {
	BaseEvent
	Recipient Recipient `json:"recipient"`
}

// OrderConfirmEvent published to the buyer when an order is created
type OrderConfirmEvent struct {
	BaseEvent
	OrderID   int64           `json:"order_id"`
	Recipient Recipient       `json:"recipient"`
	Positions []PositionData  `json:"positions"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
}

// ProviderNewOrderEvent published to every provider holding positions on a
// new order; each recipient gets one message
type ProviderNewOrderEvent struct {
	BaseEvent
	OrderID    int64          `json:"order_id"`
	Buyer      string         `json:"buyer"`
	Recipients []Recipient    `json:"recipients"`
	Positions  []PositionData `json:"positions"`
}

// OrderCancelledEvent published to the order's providers on buyer cancellation
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64       `json:"order_id"`
	Buyer      string      `json:"buyer"`
	Recipients []Recipient `json:"recipients"`
}

// OrderStatusChangedEvent published to the buyer on a staff status change
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status"`
	Recipient Recipient `json:"recipient"`
}
