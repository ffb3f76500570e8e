package mailer

import (
	"fmt"
	"strings"

	"marketplace-service/internal/models"

	"gopkg.in/gomail.v2"
)

// Sender delivers one rendered email. Implemented by Mailer; the worker
// depends on this interface so tests can capture messages.
type Sender interface {
	Send(to, subject, body string) error
}

// Mailer sends notification emails over SMTP
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewMailer creates a new SMTP mailer
func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send delivers a single message. One attempt, no retries.
func (m *Mailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// RegistrationMessage renders the registration confirmation email
func RegistrationMessage(event *models.RegistrationConfirmEvent) (subject, body string) {
	subject = "Registration confirmed"
	body = fmt.Sprintf("%s!\nCongratulations, you have just registered with our order service.",
		event.Recipient.Username)
	return subject, body
}

// OrderConfirmMessage renders the buyer's order confirmation email
func OrderConfirmMessage(event *models.OrderConfirmEvent) (subject, body string) {
	subject = "Order confirmed"

	var b strings.Builder
	fmt.Fprintf(&b, "%s!\nYour order #%d has been placed.\n\nItems:\n", event.Recipient.Username, event.OrderID)
	for _, pos := range event.Positions {
		fmt.Fprintf(&b, "  provider: %s, product: %s, quantity: %d\n", pos.Provider, pos.Product, pos.Quantity)
	}
	fmt.Fprintf(&b, "\nItems total: %d\nOrder total: %s\n", event.Count, event.Total.String())
	return subject, b.String()
}

// ProviderNewOrderMessage renders the provider's new-order email
func ProviderNewOrderMessage(event *models.ProviderNewOrderEvent) (subject, body string) {
	subject = fmt.Sprintf("New order #%d", event.OrderID)

	var b strings.Builder
	fmt.Fprintf(&b, "Buyer %s placed order #%d containing your positions:\n", event.Buyer, event.OrderID)
	for _, pos := range event.Positions {
		fmt.Fprintf(&b, "  product: %s, quantity: %d\n", pos.Product, pos.Quantity)
	}
	return subject, b.String()
}

// OrderCancelledMessage renders the provider's cancellation email
func OrderCancelledMessage(event *models.OrderCancelledEvent) (subject, body string) {
	subject = fmt.Sprintf("Order #%d cancelled", event.OrderID)
	body = fmt.Sprintf("Buyer %s has cancelled order #%d.", event.Buyer, event.OrderID)
	return subject, body
}

// OrderStatusChangedMessage renders the buyer's status-change email
func OrderStatusChangedMessage(event *models.OrderStatusChangedEvent) (subject, body string) {
	subject = fmt.Sprintf("Order #%d status update", event.OrderID)
	body = fmt.Sprintf("%s!\nYour order #%d is now %s.",
		event.Recipient.Username, event.OrderID, event.Status)
	return subject, body
}
