package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSender struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (c *capturingSender) Send(to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.sent = append(c.sent, to)
	return nil
}

func (c *capturingSender) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.sent...)
	sort.Strings(out)
	return out
}

// drain runs the sender pool over whatever is queued and waits for it.
func drain(w *NotificationWorker) {
	close(w.jobs)
	for i := 0; i < w.senders; i++ {
		w.wg.Add(1)
		go w.runSender(i)
	}
	w.wg.Wait()
}

func TestProviderFanOutSendsOneMailPerRecipient(t *testing.T) {
	sender := &capturingSender{}
	w := NewNotificationWorker(nil, sender, 3, 16)

	event := &models.ProviderNewOrderEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeProviderNewOrder},
		OrderID:   7,
		Buyer:     "foo",
		Recipients: []models.Recipient{
			{Username: "Связной", Email: "svyaznoy@example.com"},
			{Username: "Евросеть", Email: "euroset@example.com"},
		},
		Positions: []models.PositionData{
			{Product: "iPhone XR", Provider: "Связной", Quantity: 3},
		},
	}
	require.NoError(t, w.handleProviderNewOrder(context.Background(), event))

	drain(w)
	assert.Equal(t, []string{"euroset@example.com", "svyaznoy@example.com"}, sender.recipients())
}

func TestSingleRecipientEvents(t *testing.T) {
	sender := &capturingSender{}
	w := NewNotificationWorker(nil, sender, 2, 16)

	require.NoError(t, w.handleRegistrationConfirm(context.Background(), &models.RegistrationConfirmEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeRegistrationConfirm},
		Recipient: models.Recipient{Username: "foo", Email: "foo@example.com"},
	}))
	require.NoError(t, w.handleOrderStatusChanged(context.Background(), &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderStatusChanged},
		OrderID:   1,
		Status:    models.OrderStatusDone,
		Recipient: models.Recipient{Username: "foo", Email: "foo@example.com"},
	}))

	drain(w)
	assert.Len(t, sender.recipients(), 2)
}

func TestSendFailuresAreSwallowed(t *testing.T) {
	sender := &capturingSender{failWith: errors.New("smtp unreachable")}
	w := NewNotificationWorker(nil, sender, 2, 16)

	require.NoError(t, w.handleOrderConfirm(context.Background(), &models.OrderConfirmEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderConfirm},
		OrderID:   1,
		Recipient: models.Recipient{Username: "foo", Email: "foo@example.com"},
	}))

	// drain must complete without surfacing the send error anywhere
	drain(w)
	assert.Empty(t, sender.recipients())
}

func TestMissingRecipientIsDropped(t *testing.T) {
	sender := &capturingSender{}
	w := NewNotificationWorker(nil, sender, 1, 4)

	require.NoError(t, w.handleOrderCancelled(context.Background(), &models.OrderCancelledEvent{
		BaseEvent:  models.BaseEvent{EventType: models.EventTypeOrderCancelled},
		OrderID:    1,
		Buyer:      "foo",
		Recipients: []models.Recipient{{Username: "ghost", Email: ""}},
	}))

	drain(w)
	assert.Empty(t, sender.recipients())
}

func TestEnqueueRespectsContextWhenQueueIsFull(t *testing.T) {
	sender := &capturingSender{}
	w := NewNotificationWorker(nil, sender, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.enqueue(ctx, mailJob{to: "a@example.com", subject: "s", body: "b"}))

	cancel()
	err := w.enqueue(ctx, mailJob{to: "b@example.com", subject: "s", body: "b"})
	require.ErrorIs(t, err, context.Canceled)
}
