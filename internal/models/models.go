package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a buyer or, when IsStaff is set, a provider.
type User struct {
	ID          int64     `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Email       string    `db:"email" json:"email"`
	Password    string    `db:"password" json:"-"`
	IsStaff     bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser bool      `db:"is_superuser" json:"is_superuser"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Token is an opaque auth token issued at login.
type Token struct {
	Key       string    `db:"key" json:"key"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Category groups products.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Product represents a product in the catalog. The description holds the
// free-form parameters supplied by the provider's price list.
type Product struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CategoryID  int64     `db:"category_id" json:"category_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Price is one provider's offer for one product. Unique per (product, provider).
type Price struct {
	ID         int64           `db:"id" json:"-"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	ProviderID int64           `db:"provider_id" json:"provider_id"`
	Price      decimal.Decimal `db:"price" json:"price"`
}

// ProviderPrice is a price row joined with its provider's username, as
// returned by product list/detail queries.
type ProviderPrice struct {
	ProviderID int64           `db:"provider_id" json:"provider_id"`
	Provider   string          `db:"provider" json:"provider"`
	Price      decimal.Decimal `db:"price" json:"price"`
}

// Order is a buyer's order header. Count and Total are derived from the
// order's positions and are never edited independently.
type Order struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Status    string          `db:"status" json:"status"`
	Count     int             `db:"count" json:"count"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Position is one line item within an order.
type Position struct {
	ID         int64 `db:"id" json:"id"`
	OrderID    int64 `db:"order_id" json:"order_id"`
	ProductID  int64 `db:"product_id" json:"product_id"`
	ProviderID int64 `db:"provider_id" json:"provider_id"`
	Quantity   int   `db:"quantity" json:"quantity"`
}

// Order statuses
const (
	OrderStatusNew        = "NEW"
	OrderStatusInProgress = "IN_PROGRESS"
	OrderStatusDone       = "DONE"
	OrderStatusCancelled  = "CANCELLED"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case OrderStatusNew, OrderStatusInProgress, OrderStatusDone, OrderStatusCancelled:
		return true
	}
	return false
}

// TerminalStatus reports whether s admits no further transitions.
func TerminalStatus(s string) bool {
	return s == OrderStatusDone || s == OrderStatusCancelled
}
