package worker

import (
	"context"
	"sync"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/mailer"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// mailJob is one outbound message for one recipient.
type mailJob struct {
	to      string
	subject string
	body    string
}

// NotificationWorker drains notification events from Kafka, expands each
// into one mail job per recipient, and pushes the jobs through a bounded
// queue served by a fixed pool of senders. Delivery failures are logged and
// dropped; nothing is retried.
type NotificationWorker struct {
	consumer *broker.Consumer
	handler  *broker.NotificationHandler
	sender   mailer.Sender
	jobs     chan mailJob
	senders  int
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, sender mailer.Sender, senders, queueSize int) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		sender:   sender,
		jobs:     make(chan mailJob, queueSize),
		senders:  senders,
		logger:   util.GetLogger(),
	}

	handler := broker.NewNotificationHandler()
	handler.OnRegistrationConfirm(w.handleRegistrationConfirm)
	handler.OnOrderConfirm(w.handleOrderConfirm)
	handler.OnProviderNewOrder(w.handleProviderNewOrder)
	handler.OnOrderCancelled(w.handleOrderCancelled)
	handler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	w.handler = handler

	return w
}

// Start runs the sender pool and consumes until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker", zap.Int("senders", w.senders))

	for i := 0; i < w.senders; i++ {
		w.wg.Add(1)
		go w.runSender(i)
	}

	err := w.consumer.StartConsuming(ctx, w.handler.HandleMessage)

	close(w.jobs)
	w.wg.Wait()
	return err
}

// Stop closes the consumer, which unblocks Start
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) runSender(id int) {
	defer w.wg.Done()

	for job := range w.jobs {
		util.MailQueueDepth.Set(float64(len(w.jobs)))

		if err := w.sender.Send(job.to, job.subject, job.body); err != nil {
			util.NotificationsDroppedTotal.WithLabelValues("send_failed").Inc()
			w.logger.Warn("Dropping undeliverable notification",
				zap.Int("sender", id),
				zap.String("to", job.to),
				zap.String("subject", job.subject),
				zap.Error(err))
			continue
		}

		util.NotificationsSentTotal.Inc()
	}
}

func (w *NotificationWorker) enqueue(ctx context.Context, job mailJob) error {
	if job.to == "" {
		util.NotificationsDroppedTotal.WithLabelValues("no_recipient").Inc()
		return nil
	}
	select {
	case w.jobs <- job:
		util.MailQueueDepth.Set(float64(len(w.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) handleRegistrationConfirm(ctx context.Context, event *models.RegistrationConfirmEvent) error {
	subject, body := mailer.RegistrationMessage(event)
	return w.enqueue(ctx, mailJob{to: event.Recipient.Email, subject: subject, body: body})
}

func (w *NotificationWorker) handleOrderConfirm(ctx context.Context, event *models.OrderConfirmEvent) error {
	subject, body := mailer.OrderConfirmMessage(event)
	return w.enqueue(ctx, mailJob{to: event.Recipient.Email, subject: subject, body: body})
}

func (w *NotificationWorker) handleProviderNewOrder(ctx context.Context, event *models.ProviderNewOrderEvent) error {
	subject, body := mailer.ProviderNewOrderMessage(event)
	for _, recipient := range event.Recipients {
		if err := w.enqueue(ctx, mailJob{to: recipient.Email, subject: subject, body: body}); err != nil {
			return err
		}
	}
	return nil
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	subject, body := mailer.OrderCancelledMessage(event)
	for _, recipient := range event.Recipients {
		if err := w.enqueue(ctx, mailJob{to: recipient.Email, subject: subject, body: body}); err != nil {
			return err
		}
	}
	return nil
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	subject, body := mailer.OrderStatusChangedMessage(event)
	return w.enqueue(ctx, mailJob{to: event.Recipient.Email, subject: subject, body: body})
}
