package message

import (
	"time"

	"github.com/google/uuid"

	"miprojet-payment-service/internal/payment"
)

// WebhookEvent is the normalized form of an inbound provider notification,
// produced by the provider-specific HTTP adapters.
type WebhookEvent struct {
	Provider      string         `json:"provider"`
	Event         string         `json:"event"`
	Reference     string         `json:"reference"`
	ExternalID    string         `json:"externalId"`
	RawStatus     string         `json:"rawStatus"`
	MappedStatus  payment.Status `json:"mappedStatus"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"paymentMethod"`
	ReceivedAt    time.Time      `json:"receivedAt"`
}

// PaymentStatusEvent is published to Kafka after a reconciliation applied a
// status change, keyed by payment ID so deliveries for one payment stay
// ordered.
type PaymentStatusEvent struct {
	PaymentID  uuid.UUID      `json:"paymentId"`
	Reference  string         `json:"reference"`
	Provider   string         `json:"provider"`
	Event      string         `json:"event"`
	OldStatus  payment.Status `json:"oldStatus"`
	NewStatus  payment.Status `json:"newStatus"`
	OccurredAt time.Time      `json:"occurredAt"`
}
