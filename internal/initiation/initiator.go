package initiation

import (
	"context"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/gateway"
	"miprojet-payment-service/internal/payment"
)

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrMissingPaymentMethod = errors.New("payment_method is required")
)

var (
	initiatedCounter       = metrics.GetOrCreateCounter(`payment_initiation_total{result="created"}`)
	gatewayDegradedCounter = metrics.GetOrCreateCounter(`payment_initiation_total{result="gateway_degraded"}`)
	initiationErrorCounter = metrics.GetOrCreateCounter(`payment_initiation_total{result="error"}`)
	validationErrorCounter = metrics.GetOrCreateCounter(`payment_initiation_total{result="validation_error"}`)
)

type Request struct {
	Amount           int64
	Currency         string
	PaymentMethod    string
	PhoneNumber      string
	ProjectID        *uuid.UUID
	ServiceRequestID *uuid.UUID
	Description      string
	CallbackURL      string
}

type Result struct {
	Payment          *db.PaymentEntity
	ExternalResponse map[string]any
	// GatewayError is set when the local pending record was created but the
	// outbound gateway call failed. The reference stays valid: the user can
	// retry, and the gateway may still deliver a webhook against it.
	GatewayError string
}

// Initiator creates pending payment records and, when gateway credentials are
// configured, registers the transaction with the external gateway. It never
// waits for the asynchronous webhook confirmation.
type Initiator struct {
	repo    *db.PaymentRepository
	gateway *gateway.Client
	logger  *slog.Logger
}

func NewInitiator(repo *db.PaymentRepository, gw *gateway.Client, logger *slog.Logger) *Initiator {
	return &Initiator{repo: repo, gateway: gw, logger: logger}
}

func (i *Initiator) Initiate(ctx context.Context, userID uuid.UUID, req Request) (*Result, error) {
	if req.Amount <= 0 {
		validationErrorCounter.Inc()
		return nil, ErrInvalidAmount
	}
	if req.PaymentMethod == "" {
		validationErrorCounter.Inc()
		return nil, ErrMissingPaymentMethod
	}

	currency := req.Currency
	if currency == "" {
		currency = "XOF"
	}

	entity := &db.PaymentEntity{
		ID:               uuid.New(),
		UserID:           userID,
		Amount:           req.Amount,
		Currency:         currency,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: payment.NewReference(),
		ProjectID:        req.ProjectID,
		ServiceRequestID: req.ServiceRequestID,
		Status:           payment.StatusPending,
		Metadata:         i.initialMetadata(req),
	}

	created, err := i.repo.Create(ctx, entity)
	if err != nil {
		i.logger.ErrorContext(ctx, "Error creating payment record", "error", err)
		initiationErrorCounter.Inc()
		return nil, err
	}

	if err := i.auditInitiation(ctx, created); err != nil {
		// The record itself exists; a missing initiation audit row is not
		// worth failing the user's request over.
		i.logger.ErrorContext(ctx, "Error writing initiation audit log", "error", err, "paymentId", created.ID)
	}

	i.logger.InfoContext(ctx, "Payment initiated",
		"paymentId", created.ID, "reference", created.PaymentReference, "amount", created.Amount)

	result := &Result{Payment: created}

	if !i.gateway.Configured() {
		result.ExternalResponse = map[string]any{
			"simulated": true,
			"message":   "gateway credentials not configured, local-only mode",
		}
		initiatedCounter.Inc()
		return result, nil
	}

	gwResp, err := i.gateway.CreateTransaction(ctx, gateway.TransactionRequest{
		Amount:        created.Amount,
		Currency:      created.Currency,
		Reference:     created.PaymentReference,
		PaymentMethod: created.PaymentMethod,
		PhoneNumber:   req.PhoneNumber,
		Description:   req.Description,
		WebhookURL:    req.CallbackURL,
	})
	if err != nil {
		// Deliberate graceful degradation: keep the pending record and
		// surface the failure as a warning next to a usable reference.
		i.logger.WarnContext(ctx, "Gateway call failed, keeping pending payment",
			"error", err, "reference", created.PaymentReference)
		result.GatewayError = err.Error()
		gatewayDegradedCounter.Inc()
		return result, nil
	}

	result.ExternalResponse = map[string]any{
		"transaction_id": gwResp.TransactionID,
		"status":         gwResp.Status,
		"payment_url":    gwResp.PaymentURL,
	}
	initiatedCounter.Inc()
	return result, nil
}

func (i *Initiator) initialMetadata(req Request) map[string]any {
	metadata := map[string]any{}
	if req.PhoneNumber != "" {
		metadata["phoneNumber"] = req.PhoneNumber
	}
	if req.Description != "" {
		metadata["description"] = req.Description
	}
	return metadata
}

func (i *Initiator) auditInitiation(ctx context.Context, p *db.PaymentEntity) error {
	tx, err := i.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = i.repo.CreateAuditLog(ctx, tx, &db.AuditLogEntity{
		ID:        uuid.New(),
		Action:    "payment_initiated",
		TableName: "payments",
		RecordID:  p.ID,
		UserID:    p.UserID,
		Details: map[string]any{
			"reference":     p.PaymentReference,
			"amount":        p.Amount,
			"currency":      p.Currency,
			"paymentMethod": p.PaymentMethod,
		},
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
