package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/event"
	"miprojet-payment-service/internal/payment"
	"miprojet-payment-service/internal/reconcile"
	"miprojet-payment-service/internal/signature"
	"miprojet-payment-service/internal/webhook"
	"miprojet-payment-service/tests/testhelpers"
)

const webhookSecret = "test-webhook-secret"

type WebhookHandlerTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	repo        *db.PaymentRepository
	moneyFusion *webhook.MoneyFusionHandler
	fedapay     *webhook.FedapayHandler
	ctx         context.Context
}

func (s *WebhookHandlerTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	db.RunMigrations(pgContainer.ConnectionString, "../../../migrations")

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.repo = db.NewPaymentRepository(pool)

	engine := reconcile.NewEngine(s.repo, event.NewPublisher(nil, slog.Default()), slog.Default())
	s.moneyFusion = webhook.NewMoneyFusionHandler(engine, webhookSecret, slog.Default())
	s.fedapay = webhook.NewFedapayHandler(engine, webhookSecret, slog.Default())
}

func (s *WebhookHandlerTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *WebhookHandlerTestSuite) SetupTest() {
	for _, table := range []string{"audit_logs", "contributions", "payments", "service_requests", "projects"} {
		_, err := s.pool.Exec(s.ctx, "DELETE FROM "+table)
		if err != nil {
			log.Fatalf("error truncating %s table: %s", table, err)
		}
	}
}

func (s *WebhookHandlerTestSuite) seedPayment() (*db.PaymentEntity, uuid.UUID) {
	projectID := uuid.New()
	_, err := s.pool.Exec(s.ctx, `INSERT INTO projects (id, title, funds_raised) VALUES ($1, 'Solar kiosk', 500000)`, projectID)
	if err != nil {
		log.Fatal(err)
	}

	entity := &db.PaymentEntity{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		Amount:           10000,
		Currency:         "XOF",
		PaymentMethod:    "orange_money",
		PaymentReference: payment.NewReference(),
		ProjectID:        &projectID,
		Status:           payment.StatusPending,
		Metadata:         map[string]any{},
	}
	if _, err := s.repo.Create(s.ctx, entity); err != nil {
		log.Fatal(err)
	}
	return entity, projectID
}

func (s *WebhookHandlerTestSuite) moneyFusionRequest(body []byte, sign bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/functions/money-fusion-webhook", bytes.NewReader(body))
	if sign {
		req.Header.Set("X-MoneyFusion-Signature", signature.Compute(body, webhookSecret))
	}
	rec := httptest.NewRecorder()
	s.moneyFusion.Handle(rec, req)
	return rec
}

func (s *WebhookHandlerTestSuite) TestMoneyFusion_ValidSignatureCompletesPayment() {
	t := s.T()

	p, projectID := s.seedPayment()
	body := []byte(fmt.Sprintf(`{"transaction_id":"tx-1","reference":%q,"status":"success","amount":10000,"currency":"XOF"}`, p.PaymentReference))

	rec := s.moneyFusionRequest(body, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "completed", response["status"])

	funds, err := s.repo.GetProjectFundsRaised(s.ctx, projectID)
	assert.NoError(t, err)
	assert.Equal(t, int64(510000), funds)
}

func (s *WebhookHandlerTestSuite) TestMoneyFusion_TamperedBodyRejectedWithoutWrites() {
	t := s.T()

	p, projectID := s.seedPayment()
	body := []byte(fmt.Sprintf(`{"transaction_id":"tx-1","reference":%q,"status":"success","amount":10000}`, p.PaymentReference))

	req := httptest.NewRequest(http.MethodPost, "/functions/money-fusion-webhook", bytes.NewReader(append(body, ' ')))
	req.Header.Set("X-MoneyFusion-Signature", signature.Compute(body, webhookSecret))
	rec := httptest.NewRecorder()
	s.moneyFusion.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stored, err := s.repo.GetByID(s.ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)
	assert.Empty(t, stored.Metadata)

	funds, err := s.repo.GetProjectFundsRaised(s.ctx, projectID)
	assert.NoError(t, err)
	assert.Equal(t, int64(500000), funds)
}

func (s *WebhookHandlerTestSuite) TestMoneyFusion_MissingSignatureRejected() {
	t := s.T()

	p, _ := s.seedPayment()
	body := []byte(fmt.Sprintf(`{"reference":%q,"status":"success"}`, p.PaymentReference))

	rec := s.moneyFusionRequest(body, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func (s *WebhookHandlerTestSuite) TestMoneyFusion_UnknownReferenceReturns404() {
	t := s.T()

	body := []byte(`{"transaction_id":"tx-9","reference":"MIPROJET-0-XXXXX","status":"success"}`)

	rec := s.moneyFusionRequest(body, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (s *WebhookHandlerTestSuite) TestFedapay_SignatureMismatchIsProcessedAnyway() {
	t := s.T()

	p, projectID := s.seedPayment()
	body := []byte(fmt.Sprintf(`{"name":"transaction.approved","entity":{"id":42,"reference":%q,"status":"approved"}}`, p.PaymentReference))

	req := httptest.NewRequest(http.MethodPost, "/functions/fedapay-webhook", bytes.NewReader(body))
	req.Header.Set("x-fedapay-signature", "deadbeef")
	rec := httptest.NewRecorder()
	s.fedapay.Handle(rec, req)

	// Legacy integration: mismatch is logged, delivery still applied.
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := s.repo.GetByID(s.ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	assert.Equal(t, "42", stored.Metadata["externalTransactionId"])

	funds, err := s.repo.GetProjectFundsRaised(s.ctx, projectID)
	assert.NoError(t, err)
	assert.Equal(t, int64(510000), funds)
}

func (s *WebhookHandlerTestSuite) TestFedapay_PingWithoutEntityAcknowledged() {
	t := s.T()

	body := []byte(`{"name":"account.updated"}`)

	req := httptest.NewRequest(http.MethodPost, "/functions/fedapay-webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.fedapay.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, true, response["received"])
}

func (s *WebhookHandlerTestSuite) TestFedapay_MalformedBodyStillAcknowledged() {
	t := s.T()

	req := httptest.NewRequest(http.MethodPost, "/functions/fedapay-webhook", bytes.NewReader([]byte(`not-json`)))
	rec := httptest.NewRecorder()
	s.fedapay.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, true, response["received"])
	assert.NotEmpty(t, response["error"])
}

func TestWebhookHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlerTestSuite))
}
