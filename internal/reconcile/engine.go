package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/event"
	"miprojet-payment-service/internal/logcontext"
	"miprojet-payment-service/internal/message"
	"miprojet-payment-service/internal/payment"
)

type Outcome string

const (
	// OutcomeApplied means the mapped status was written (it may equal the
	// previous non-terminal status, e.g. pending -> pending).
	OutcomeApplied Outcome = "applied"
	// OutcomeUnchanged means the payment was already terminal; only
	// diagnostic metadata was appended.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeNoReference means the event carried no correlation key at all.
	OutcomeNoReference Outcome = "no_reference"
	// OutcomeNotFound means no payment matched the correlation key.
	OutcomeNotFound Outcome = "not_found"
)

type Result struct {
	Outcome   Outcome
	Payment   *db.PaymentEntity
	OldStatus payment.Status
	NewStatus payment.Status
}

var (
	appliedCounter     = metrics.GetOrCreateCounter(`reconcile_total{result="applied"}`)
	unchangedCounter   = metrics.GetOrCreateCounter(`reconcile_total{result="unchanged"}`)
	noReferenceCounter = metrics.GetOrCreateCounter(`reconcile_total{result="no_reference"}`)
	notFoundCounter    = metrics.GetOrCreateCounter(`reconcile_total{result="not_found"}`)
	errorCounter       = metrics.GetOrCreateCounter(`reconcile_total{result="error"}`)
	fundsCreditCounter = metrics.GetOrCreateCounter(`reconcile_funds_credits_total`)

	durationHistogram = metrics.GetOrCreateHistogram(`reconcile_duration_milliseconds`)
)

// Engine applies a provider notification to the local ledger: the payment's
// status, the linked project's raised funds, the linked service request, and
// the audit log. All writes for one event happen in a single transaction, so
// a funds credit can never be observed without its contribution row or the
// status transition that earned it.
type Engine struct {
	repo      *db.PaymentRepository
	publisher *event.Publisher
	logger    *slog.Logger
}

func NewEngine(repo *db.PaymentRepository, publisher *event.Publisher, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, publisher: publisher, logger: logger}
}

func (e *Engine) Reconcile(ctx context.Context, ev message.WebhookEvent) (*Result, error) {
	startTime := time.Now()
	defer func() {
		durationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx = logcontext.AppendCtx(ctx,
		slog.String("provider", ev.Provider),
		slog.String("reference", ev.Reference),
	)

	if ev.Reference == "" && ev.ExternalID == "" {
		e.logger.InfoContext(ctx, "Event carries no correlation key, acknowledging as no-op", "event", ev.Event)
		noReferenceCounter.Inc()
		return &Result{Outcome: OutcomeNoReference}, nil
	}

	found, err := e.repo.FindByReferenceOrExternalID(ctx, ev.Reference, ev.ExternalID)
	if err != nil {
		if err == db.ErrNotFound {
			e.logger.WarnContext(ctx, "No payment matches webhook correlation key", "externalId", ev.ExternalID)
			notFoundCounter.Inc()
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		errorCounter.Inc()
		return nil, err
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", found.ID.String()))

	result, err := e.apply(ctx, found.ID, ev)
	if err != nil {
		errorCounter.Inc()
		return nil, err
	}

	switch result.Outcome {
	case OutcomeApplied:
		appliedCounter.Inc()
		if result.OldStatus != result.NewStatus {
			e.publisher.Publish(ctx, message.PaymentStatusEvent{
				PaymentID:  result.Payment.ID,
				Reference:  result.Payment.PaymentReference,
				Provider:   ev.Provider,
				Event:      ev.Event,
				OldStatus:  result.OldStatus,
				NewStatus:  result.NewStatus,
				OccurredAt: time.Now(),
			})
		}
	case OutcomeUnchanged:
		unchangedCounter.Inc()
	}

	return result, nil
}

// apply runs the transactional part: lock the payment row, write the status
// conditionally, and perform the side effects of a first transition into
// completed.
func (e *Engine) apply(ctx context.Context, paymentID uuid.UUID, ev message.WebhookEvent) (*Result, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := e.repo.SelectForUpdateByID(ctx, tx, paymentID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Error locking payment row", "error", err)
		return nil, err
	}

	oldStatus := current.Status

	patch := map[string]any{
		"webhookReceivedAt": ev.ReceivedAt.UTC().Format(time.RFC3339),
		"providerStatus":    ev.RawStatus,
		"providerEvent":     ev.Event,
	}
	if ev.ExternalID != "" {
		patch["externalTransactionId"] = ev.ExternalID
	}
	if ev.PaymentMethod != "" {
		patch["paymentMethod"] = ev.PaymentMethod
	}

	updated, err := e.repo.UpdateStatusAndMergeMetadata(ctx, tx, paymentID, ev.MappedStatus, patch)
	if err != nil {
		e.logger.ErrorContext(ctx, "Error updating payment status", "error", err)
		return nil, err
	}

	result := &Result{
		Payment:   updated,
		OldStatus: oldStatus,
		NewStatus: updated.Status,
	}

	if oldStatus.IsTerminal() {
		e.logger.InfoContext(ctx, "Payment already terminal, status unchanged",
			"status", oldStatus, "providerStatus", ev.RawStatus)
		result.Outcome = OutcomeUnchanged
		return result, tx.Commit(ctx)
	}

	result.Outcome = OutcomeApplied

	if updated.Status == payment.StatusCompleted {
		if err := e.credit(ctx, tx, updated); err != nil {
			return nil, err
		}
	}

	if oldStatus != updated.Status {
		err = e.repo.CreateAuditLog(ctx, tx, &db.AuditLogEntity{
			ID:        uuid.New(),
			Action:    "payment_status_changed",
			TableName: "payments",
			RecordID:  updated.ID,
			UserID:    updated.UserID,
			Details: map[string]any{
				"oldStatus":             string(oldStatus),
				"newStatus":             string(updated.Status),
				"providerEvent":         ev.Event,
				"externalTransactionId": ev.ExternalID,
			},
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "Error writing audit log", "error", err)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		return nil, err
	}

	e.logger.InfoContext(ctx, "Reconciliation applied", "oldStatus", oldStatus, "newStatus", updated.Status)
	return result, nil
}

// credit performs the first-completion side effects. Callers only reach here
// when the prior status was non-terminal, so the transition into completed is
// happening exactly now and at most once.
func (e *Engine) credit(ctx context.Context, tx pgx.Tx, p *db.PaymentEntity) error {
	if p.ProjectID != nil {
		if err := e.repo.IncrementProjectFunds(ctx, tx, *p.ProjectID, p.Amount); err != nil {
			e.logger.ErrorContext(ctx, "Error crediting project funds", "error", err, "projectId", p.ProjectID)
			return err
		}

		inserted, err := e.repo.CreateContribution(ctx, tx, &db.ContributionEntity{
			ID:               uuid.New(),
			ProjectID:        *p.ProjectID,
			UserID:           p.UserID,
			Amount:           p.Amount,
			Type:             "investment",
			PaymentReference: p.PaymentReference,
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "Data integrity warning: funds credited but contribution insert failed",
				"error", err, "projectId", p.ProjectID, "reference", p.PaymentReference)
			return err
		}
		if !inserted {
			e.logger.WarnContext(ctx, "Contribution already recorded for reference", "reference", p.PaymentReference)
		}

		fundsCreditCounter.Inc()
	}

	if p.ServiceRequestID != nil {
		if err := e.repo.MarkServiceRequestPaid(ctx, tx, *p.ServiceRequestID); err != nil {
			e.logger.ErrorContext(ctx, "Error marking service request paid", "error", err, "serviceRequestId", p.ServiceRequestID)
			return err
		}
	}

	return nil
}
