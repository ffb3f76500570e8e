package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PositionInput is one requested line item for order creation or replacement.
type PositionInput struct {
	ProductID  int64 `json:"product" binding:"required"`
	ProviderID int64 `json:"provider" binding:"required"`
	Quantity   int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrder persists an order and all its positions in a single
// transaction. Provider activity checks and price lookups run inside the
// same transaction so a concurrent import cannot split one order across two
// price sets. Any failure rolls the whole order back.
func (s *Store) CreateOrder(ctx context.Context, userID int64, items []PositionInput) (*models.Order, []models.Position, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	total := decimal.Zero
	count := 0
	prices := make([]decimal.Decimal, len(items))

	for i, item := range items {
		if err := checkProviderActive(ctx, tx, item.ProviderID); err != nil {
			return nil, nil, err
		}

		price, err := getPriceTx(ctx, tx, item.ProductID, item.ProviderID)
		if err != nil {
			return nil, nil, err
		}

		prices[i] = price
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}

	var order models.Order
	err = tx.GetContext(ctx, &order,
		`INSERT INTO orders (user_id, status, count, total)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, status, count, total, created_at, updated_at`,
		userID, models.OrderStatusNew, count, total)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert order: %w", err)
	}

	positions, err := insertPositions(ctx, tx, order.ID, items)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &order, positions, nil
}

// ReplaceOrderPositions replaces an order's positions wholesale and
// recomputes count/total, all in one transaction. Only NEW orders may be
// replaced; the status row is locked for the duration.
func (s *Store) ReplaceOrderPositions(ctx context.Context, orderID int64, items []PositionInput) (*models.Order, []models.Position, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var status string
	err = tx.GetContext(ctx, &status,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, nil, err
	}
	if status != models.OrderStatusNew {
		return nil, nil, fmt.Errorf("%w: positions can only be replaced while the order is NEW", models.ErrForbiddenTransition)
	}

	total := decimal.Zero
	count := 0
	for _, item := range items {
		if err := checkProviderActive(ctx, tx, item.ProviderID); err != nil {
			return nil, nil, err
		}
		price, err := getPriceTx(ctx, tx, item.ProductID, item.ProviderID)
		if err != nil {
			return nil, nil, err
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM positions WHERE order_id = $1", orderID); err != nil {
		return nil, nil, fmt.Errorf("failed to delete old positions: %w", err)
	}

	positions, err := insertPositions(ctx, tx, orderID, items)
	if err != nil {
		return nil, nil, err
	}

	var order models.Order
	err = tx.GetContext(ctx, &order,
		`UPDATE orders SET count = $1, total = $2, updated_at = NOW()
		 WHERE id = $3
		 RETURNING id, user_id, status, count, total, created_at, updated_at`,
		count, total, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update order totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &order, positions, nil
}

func checkProviderActive(ctx context.Context, tx *sqlx.Tx, providerID int64) error {
	var active bool
	err := tx.GetContext(ctx, &active,
		"SELECT is_active FROM users WHERE id = $1 AND is_staff = TRUE", providerID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: provider %d not found", models.ErrProviderInactive, providerID)
	}
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: provider %d", models.ErrProviderInactive, providerID)
	}
	return nil
}

func getPriceTx(ctx context.Context, tx *sqlx.Tx, productID, providerID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := tx.GetContext(ctx, &price,
		"SELECT price FROM prices WHERE product_id = $1 AND provider_id = $2",
		productID, providerID)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: product=%d provider=%d", models.ErrPriceNotFound, productID, providerID)
	}
	return price, err
}

func insertPositions(ctx context.Context, tx *sqlx.Tx, orderID int64, items []PositionInput) ([]models.Position, error) {
	positions := make([]models.Position, 0, len(items))
	for _, item := range items {
		pos := models.Position{
			OrderID:    orderID,
			ProductID:  item.ProductID,
			ProviderID: item.ProviderID,
			Quantity:   item.Quantity,
		}
		err := tx.GetContext(ctx, &pos.ID,
			`INSERT INTO positions (order_id, product_id, provider_id, quantity)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			pos.OrderID, pos.ProductID, pos.ProviderID, pos.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to insert position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrders retrieves all orders
func (s *Store) GetOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetOrdersByUserID retrieves orders placed by a buyer
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrdersByProviderID retrieves orders containing the provider's positions
func (s *Store) GetOrdersByProviderID(ctx context.Context, providerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT DISTINCT o.* FROM orders o
		 JOIN positions p ON p.order_id = o.id
		 WHERE p.provider_id = $1
		 ORDER BY o.created_at DESC`, providerID)
	return orders, err
}

// GetPositionsByOrderID retrieves all positions for an order
func (s *Store) GetPositionsByOrderID(ctx context.Context, orderID int64) ([]models.Position, error) {
	var positions []models.Position
	err := s.db.SelectContext(ctx, &positions,
		"SELECT * FROM positions WHERE order_id = $1 ORDER BY id", orderID)
	return positions, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return nil
}

// DeleteOrder deletes an order and, via cascade, its positions
func (s *Store) DeleteOrder(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return nil
}

// GetOrderProviders retrieves the distinct providers holding positions on an
// order, for cancellation fan-out.
func (s *Store) GetOrderProviders(ctx context.Context, orderID int64) ([]models.User, error) {
	var providers []models.User
	err := s.db.SelectContext(ctx, &providers,
		`SELECT DISTINCT u.* FROM users u
		 JOIN positions p ON p.provider_id = u.id
		 WHERE p.order_id = $1`, orderID)
	return providers, err
}
