package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the slice of the store the order workflow needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, userID int64, items []store.PositionInput) (*models.Order, []models.Position, error)
	ReplaceOrderPositions(ctx context.Context, orderID int64, items []store.PositionInput) (*models.Order, []models.Position, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrdersByProviderID(ctx context.Context, providerID int64) ([]models.Order, error)
	GetPositionsByOrderID(ctx context.Context, orderID int64) ([]models.Position, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	DeleteOrder(ctx context.Context, orderID int64) error
	GetOrderProviders(ctx context.Context, orderID int64) ([]models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// OrderNotifier publishes order notification events.
type OrderNotifier interface {
	PublishOrderConfirm(ctx context.Context, event *models.OrderConfirmEvent) error
	PublishProviderNewOrder(ctx context.Context, event *models.ProviderNewOrderEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// OrderService handles order business logic
type OrderService struct {
	store    OrderStore
	notifier OrderNotifier
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, notifier OrderNotifier) *OrderService {
	return &OrderService{
		store:    store,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	Positions []store.PositionInput `json:"products_list" binding:"required,min=1"`
}

// ReplaceOrderRequest replaces an order's positions wholesale
type ReplaceOrderRequest struct {
	Positions []store.PositionInput `json:"products_list" binding:"required,min=1"`
}

// UpdateOrderStatusRequest requests a status transition
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderResponse is a persisted order aggregate
type OrderResponse struct {
	Order     *models.Order     `json:"order"`
	Positions []models.Position `json:"positions"`
}

// CreateOrder validates the requested line items, persists the order and its
// positions in one transaction, and hands notification events to the
// dispatcher. Validation failures abort the whole transaction.
func (s *OrderService) CreateOrder(ctx context.Context, buyer *models.User, req *CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validatePositions(req.Positions); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	order, positions, err := s.store.CreateOrder(ctx, buyer.ID, req.Positions)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", buyer.ID),
		zap.Int("count", order.Count),
		zap.String("total", order.Total.String()))

	s.notifyOrderCreated(ctx, buyer, order, positions)

	return &OrderResponse{Order: order, Positions: positions}, nil
}

func validatePositions(items []store.PositionInput) error {
	if len(items) == 0 {
		return models.NewValidationError("products_list", "at least one position is required")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return models.NewValidationError("quantity", "must be a positive integer")
		}
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrPriceNotFound):
		return "price_not_found"
	case errors.Is(err, models.ErrProviderInactive):
		return "provider_inactive"
	default:
		return "db_error"
	}
}

// notifyOrderCreated publishes the buyer confirmation and the provider
// new-order fan-out. Publish failures are logged and dropped.
func (s *OrderService) notifyOrderCreated(ctx context.Context, buyer *models.User, order *models.Order, positions []models.Position) {
	positionData, providers := s.describePositions(ctx, order.ID, positions)

	confirm := &models.OrderConfirmEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderConfirm),
		OrderID:   order.ID,
		Recipient: models.Recipient{Username: buyer.Username, Email: buyer.Email},
		Positions: positionData,
		Total:     order.Total,
		Count:     order.Count,
	}
	if err := s.notifier.PublishOrderConfirm(ctx, confirm); err != nil {
		s.logger.Error("Failed to publish OrderConfirm event", zap.Error(err))
	}

	newOrder := &models.ProviderNewOrderEvent{
		BaseEvent:  newBaseEvent(models.EventTypeProviderNewOrder),
		OrderID:    order.ID,
		Buyer:      buyer.Username,
		Recipients: providers,
		Positions:  positionData,
	}
	if err := s.notifier.PublishProviderNewOrder(ctx, newOrder); err != nil {
		s.logger.Error("Failed to publish ProviderNewOrder event", zap.Error(err))
	}
}

// describePositions resolves product and provider names for event payloads
// and collects the distinct provider recipients.
func (s *OrderService) describePositions(ctx context.Context, orderID int64, positions []models.Position) ([]models.PositionData, []models.Recipient) {
	data := make([]models.PositionData, 0, len(positions))
	for _, pos := range positions {
		item := models.PositionData{Quantity: pos.Quantity}

		if product, err := s.store.GetProductByID(ctx, pos.ProductID); err == nil {
			item.Product = product.Name
		} else {
			item.Product = fmt.Sprintf("#%d", pos.ProductID)
		}
		if provider, err := s.store.GetUserByID(ctx, pos.ProviderID); err == nil {
			item.Provider = provider.Username
		} else {
			item.Provider = fmt.Sprintf("#%d", pos.ProviderID)
		}
		data = append(data, item)
	}

	providers, err := s.store.GetOrderProviders(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load order providers", zap.Int64("order_id", orderID), zap.Error(err))
	}
	recipients := make([]models.Recipient, 0, len(providers))
	for _, p := range providers {
		recipients = append(recipients, models.Recipient{Username: p.Username, Email: p.Email})
	}
	return data, recipients
}

// GetOrder retrieves an order with its positions. Only the owner and
// superusers may read an order.
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, orderID int64) (*OrderResponse, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != user.ID && !user.IsSuperuser {
		return nil, fmt.Errorf("%w: order %d", models.ErrNotOwner, orderID)
	}

	positions, err := s.store.GetPositionsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResponse{Order: order, Positions: positions}, nil
}

// ListOrders lists the caller's own orders. Staff see the orders containing
// their positions; superusers see everything.
func (s *OrderService) ListOrders(ctx context.Context, user *models.User) ([]models.Order, error) {
	switch {
	case user.IsSuperuser:
		return s.store.GetOrders(ctx)
	case user.IsStaff:
		return s.store.GetOrdersByProviderID(ctx, user.ID)
	default:
		return s.store.GetOrdersByUserID(ctx, user.ID)
	}
}

// ReplaceOrder replaces the order's positions wholesale and recomputes the
// totals. Owner only, and only while the order is still NEW.
func (s *OrderService) ReplaceOrder(ctx context.Context, user *models.User, orderID int64, req *ReplaceOrderRequest) (*OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ReplaceOrder")
	defer span.End()

	if err := validatePositions(req.Positions); err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID {
		return nil, fmt.Errorf("%w: order %d", models.ErrNotOwner, orderID)
	}

	updated, positions, err := s.store.ReplaceOrderPositions(ctx, orderID, req.Positions)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order positions replaced",
		zap.Int64("order_id", orderID),
		zap.Int("count", updated.Count),
		zap.String("total", updated.Total.String()))

	return &OrderResponse{Order: updated, Positions: positions}, nil
}

// UpdateOrderStatus applies a status transition subject to the ownership
// rules: the buyer may only cancel a non-terminal order, staff may set any
// status. Notifications fan out according to who initiated the change.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, user *models.User, orderID int64, newStatus string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if !models.ValidStatus(newStatus) {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", newStatus))
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	staff := user.IsStaff || user.IsSuperuser
	if !staff {
		if order.UserID != user.ID {
			return nil, fmt.Errorf("%w: order %d", models.ErrNotOwner, orderID)
		}
		if newStatus != models.OrderStatusCancelled {
			return nil, fmt.Errorf("%w: a buyer may only cancel an order", models.ErrForbiddenTransition)
		}
		if models.TerminalStatus(order.Status) {
			return nil, fmt.Errorf("%w: order is already %s", models.ErrForbiddenTransition, order.Status)
		}
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(newStatus).Inc()
	if newStatus == models.OrderStatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", newStatus),
		zap.Int64("by", user.ID))

	if staff {
		s.notifyBuyerStatusChanged(ctx, order, newStatus)
	} else if newStatus == models.OrderStatusCancelled {
		s.notifyProvidersCancelled(ctx, order, user.Username)
	}

	order.Status = newStatus
	return order, nil
}

func (s *OrderService) notifyBuyerStatusChanged(ctx context.Context, order *models.Order, status string) {
	buyer, err := s.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.logger.Error("Failed to load buyer for status notification",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   order.ID,
		Status:    status,
		Recipient: models.Recipient{Username: buyer.Username, Email: buyer.Email},
	}
	if err := s.notifier.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func (s *OrderService) notifyProvidersCancelled(ctx context.Context, order *models.Order, buyer string) {
	providers, err := s.store.GetOrderProviders(ctx, order.ID)
	if err != nil {
		s.logger.Error("Failed to load providers for cancellation notification",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	recipients := make([]models.Recipient, 0, len(providers))
	for _, p := range providers {
		recipients = append(recipients, models.Recipient{Username: p.Username, Email: p.Email})
	}

	event := &models.OrderCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:    order.ID,
		Buyer:      buyer,
		Recipients: recipients,
	}
	if err := s.notifier.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

// DeleteOrder removes an order. Staff only, and only once the order has
// reached CANCELLED or DONE.
func (s *OrderService) DeleteOrder(ctx context.Context, user *models.User, orderID int64) error {
	if !user.IsStaff && !user.IsSuperuser {
		return fmt.Errorf("%w: only staff may delete orders", models.ErrNotOwner)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status != models.OrderStatusCancelled && order.Status != models.OrderStatusDone {
		return fmt.Errorf("%w: only CANCELLED or DONE orders may be deleted", models.ErrForbiddenTransition)
	}

	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}

	s.logger.Info("Order deleted", zap.Int64("order_id", orderID), zap.Int64("by", user.ID))
	return nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
