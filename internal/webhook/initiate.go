package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"miprojet-payment-service/internal/auth"
	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/initiation"
	"miprojet-payment-service/internal/logcontext"
)

type initiateRequest struct {
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	PaymentMethod    string `json:"payment_method"`
	PhoneNumber      string `json:"phone_number"`
	ProjectID        string `json:"project_id"`
	ServiceRequestID string `json:"service_request_id"`
	Description      string `json:"description"`
	CallbackURL      string `json:"callback_url"`
}

// PaymentHandler serves payment initiation and the status lookup the UI
// polls while waiting for the webhook confirmation.
type PaymentHandler struct {
	initiator *initiation.Initiator
	repo      *db.PaymentRepository
	logger    *slog.Logger
}

func NewPaymentHandler(initiator *initiation.Initiator, repo *db.PaymentRepository, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{initiator: initiator, repo: repo, logger: logger}
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := logcontext.AppendCtx(r.Context(), slog.String("requestId", uuid.New().String()))

	userID, err := auth.UserIDFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing or invalid authorization"})
		return
	}

	var body initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	req := initiation.Request{
		Amount:        body.Amount,
		Currency:      body.Currency,
		PaymentMethod: body.PaymentMethod,
		PhoneNumber:   body.PhoneNumber,
		Description:   body.Description,
		CallbackURL:   body.CallbackURL,
	}

	if body.ProjectID != "" {
		projectID, err := uuid.Parse(body.ProjectID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid project_id"})
			return
		}
		req.ProjectID = &projectID
	}
	if body.ServiceRequestID != "" {
		serviceRequestID, err := uuid.Parse(body.ServiceRequestID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid service_request_id"})
			return
		}
		req.ServiceRequestID = &serviceRequestID
	}

	result, err := h.initiator.Initiate(ctx, userID, req)
	if err != nil {
		if errors.Is(err, initiation.ErrInvalidAmount) || errors.Is(err, initiation.ErrMissingPaymentMethod) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		h.logger.ErrorContext(ctx, "Error initiating payment", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to initiate payment"})
		return
	}

	response := map[string]any{
		"success":           true,
		"payment_id":        result.Payment.ID,
		"reference":         result.Payment.PaymentReference,
		"status":            result.Payment.Status,
		"amount":            result.Payment.Amount,
		"currency":          result.Payment.Currency,
		"payment_method":    result.Payment.PaymentMethod,
		"external_response": result.ExternalResponse,
	}
	if result.GatewayError != "" {
		response["gateway_warning"] = result.GatewayError
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing or invalid authorization"})
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payment id"})
		return
	}

	entity, err := h.repo.GetByID(r.Context(), paymentID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "payment not found"})
		return
	}
	if entity.UserID != userID {
		// Not distinguishing "someone else's payment" from "no payment".
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "payment not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": entity.ID,
		"reference":  entity.PaymentReference,
		"status":     entity.Status,
		"amount":     entity.Amount,
		"currency":   entity.Currency,
		"updated_at": entity.UpdatedAt,
	})
}
