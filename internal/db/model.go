package db

import (
	"time"

	"github.com/google/uuid"

	"miprojet-payment-service/internal/payment"
)

type PaymentEntity struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Amount           int64
	Currency         string
	PaymentMethod    string
	PaymentReference string
	ProjectID        *uuid.UUID
	ServiceRequestID *uuid.UUID
	Status           payment.Status
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ContributionEntity struct {
	ID               uuid.UUID
	ProjectID        uuid.UUID
	UserID           uuid.UUID
	Amount           int64
	Type             string
	PaymentReference string
	CreatedAt        time.Time
}

type AuditLogEntity struct {
	ID        uuid.UUID
	Action    string
	TableName string
	RecordID  uuid.UUID
	UserID    uuid.UUID
	Details   map[string]any
	CreatedAt time.Time
}
