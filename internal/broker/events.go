package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/segmentio/kafka-go"
)

// NotificationPublisher publishes notification events for the mail worker.
// Callers hand the event off and never wait for delivery.
type NotificationPublisher struct {
	producer *Producer
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

func (np *NotificationPublisher) publish(ctx context.Context, key, eventType string, event interface{}) error {
	if err := np.producer.PublishEvent(ctx, key, event); err != nil {
		return err
	}
	util.NotificationsPublishedTotal.WithLabelValues(eventType).Inc()
	return nil
}

// PublishRegistrationConfirm publishes a registration confirmation event
func (np *NotificationPublisher) PublishRegistrationConfirm(ctx context.Context, event *models.RegistrationConfirmEvent) error {
	key := fmt.Sprintf("user-%s", event.Recipient.Username)
	return np.publish(ctx, key, event.EventType, event)
}

// PublishOrderConfirm publishes an order confirmation event for the buyer
func (np *NotificationPublisher) PublishOrderConfirm(ctx context.Context, event *models.OrderConfirmEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.publish(ctx, key, event.EventType, event)
}

// PublishProviderNewOrder publishes a new-order event for the providers
func (np *NotificationPublisher) PublishProviderNewOrder(ctx context.Context, event *models.ProviderNewOrderEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.publish(ctx, key, event.EventType, event)
}

// PublishOrderCancelled publishes a cancellation event for the providers
func (np *NotificationPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.publish(ctx, key, event.EventType, event)
}

// PublishOrderStatusChanged publishes a status-change event for the buyer
func (np *NotificationPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return np.publish(ctx, key, event.EventType, event)
}

// NotificationHandler routes consumed notification events to per-kind handlers
type NotificationHandler struct {
	onRegistrationConfirm func(context.Context, *models.RegistrationConfirmEvent) error
	onOrderConfirm        func(context.Context, *models.OrderConfirmEvent) error
	onProviderNewOrder    func(context.Context, *models.ProviderNewOrderEvent) error
	onOrderCancelled      func(context.Context, *models.OrderCancelledEvent) error
	onOrderStatusChanged  func(context.Context, *models.OrderStatusChangedEvent) error
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{}
}

// OnRegistrationConfirm registers a handler for registration events
func (nh *NotificationHandler) OnRegistrationConfirm(handler func(context.Context, *models.RegistrationConfirmEvent) error) {
	nh.onRegistrationConfirm = handler
}

// OnOrderConfirm registers a handler for order confirmation events
func (nh *NotificationHandler) OnOrderConfirm(handler func(context.Context, *models.OrderConfirmEvent) error) {
	nh.onOrderConfirm = handler
}

// OnProviderNewOrder registers a handler for provider new-order events
func (nh *NotificationHandler) OnProviderNewOrder(handler func(context.Context, *models.ProviderNewOrderEvent) error) {
	nh.onProviderNewOrder = handler
}

// OnOrderCancelled registers a handler for cancellation events
func (nh *NotificationHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	nh.onOrderCancelled = handler
}

// OnOrderStatusChanged registers a handler for status-change events
func (nh *NotificationHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	nh.onOrderStatusChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (nh *NotificationHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeRegistrationConfirm:
		if nh.onRegistrationConfirm != nil {
			var event models.RegistrationConfirmEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RegistrationConfirm event: %w", err)
			}
			return nh.onRegistrationConfirm(ctx, &event)
		}

	case models.EventTypeOrderConfirm:
		if nh.onOrderConfirm != nil {
			var event models.OrderConfirmEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderConfirm event: %w", err)
			}
			return nh.onOrderConfirm(ctx, &event)
		}

	case models.EventTypeProviderNewOrder:
		if nh.onProviderNewOrder != nil {
			var event models.ProviderNewOrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProviderNewOrder event: %w", err)
			}
			return nh.onProviderNewOrder(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if nh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return nh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if nh.onOrderStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return nh.onOrderStatusChanged(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
