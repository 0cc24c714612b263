package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"miprojet-payment-service/internal/logcontext"
	"miprojet-payment-service/internal/message"
	"miprojet-payment-service/internal/payment"
	"miprojet-payment-service/internal/reconcile"
	"miprojet-payment-service/internal/signature"
)

const moneyFusionSignatureHeader = "X-MoneyFusion-Signature"

var (
	moneyFusionRejectedCounter = metrics.GetOrCreateCounter(`webhook_requests_total{provider="money_fusion",result="signature_rejected"}`)
	moneyFusionAcceptedCounter = metrics.GetOrCreateCounter(`webhook_requests_total{provider="money_fusion",result="accepted"}`)
	moneyFusionErrorCounter    = metrics.GetOrCreateCounter(`webhook_requests_total{provider="money_fusion",result="error"}`)
)

type moneyFusionPayload struct {
	TransactionID string         `json:"transaction_id"`
	Reference     string         `json:"reference"`
	Status        string         `json:"status"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// MoneyFusionHandler is the signature-enforced webhook endpoint. A missing or
// mismatched signature (or an unconfigured secret) is rejected with 401
// before any data is touched.
type MoneyFusionHandler struct {
	engine *reconcile.Engine
	secret string
	logger *slog.Logger
}

func NewMoneyFusionHandler(engine *reconcile.Engine, secret string, logger *slog.Logger) *MoneyFusionHandler {
	return &MoneyFusionHandler{engine: engine, secret: secret, logger: logger}
}

func (h *MoneyFusionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := logcontext.AppendCtx(r.Context(), slog.String("deliveryId", uuid.New().String()))

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "Error reading webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable body"})
		return
	}

	if h.secret == "" {
		h.logger.ErrorContext(ctx, "Money Fusion webhook secret not configured, rejecting")
		moneyFusionRejectedCounter.Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "webhook secret not configured"})
		return
	}

	if !signature.Verify(rawBody, r.Header.Get(moneyFusionSignatureHeader), h.secret) {
		h.logger.WarnContext(ctx, "Invalid Money Fusion webhook signature")
		moneyFusionRejectedCounter.Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid signature"})
		return
	}

	var payload moneyFusionPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		h.logger.ErrorContext(ctx, "Error unmarshalling webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}

	event := message.WebhookEvent{
		Provider:      "money_fusion",
		Event:         "payment." + payload.Status,
		Reference:     payload.Reference,
		ExternalID:    payload.TransactionID,
		RawStatus:     payload.Status,
		MappedStatus:  payment.MapMoneyFusionStatus(payload.Status),
		Amount:        payload.Amount,
		Currency:      payload.Currency,
		PaymentMethod: payload.PaymentMethod,
		ReceivedAt:    time.Now(),
	}

	result, err := h.engine.Reconcile(ctx, event)
	if err != nil {
		moneyFusionErrorCounter.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "update failed",
			"message": err.Error(),
		})
		return
	}

	switch result.Outcome {
	case reconcile.OutcomeNotFound, reconcile.OutcomeNoReference:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no matching payment"})
	default:
		moneyFusionAcceptedCounter.Inc()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"payment_id": result.Payment.ID,
			"status":     result.Payment.Status,
		})
	}
}
