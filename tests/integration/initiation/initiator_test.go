package initiation

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"miprojet-payment-service/internal/config"
	"miprojet-payment-service/internal/db"
	"miprojet-payment-service/internal/gateway"
	"miprojet-payment-service/internal/initiation"
	"miprojet-payment-service/internal/payment"
	"miprojet-payment-service/tests/testhelpers"
)

type InitiatorTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	repo        *db.PaymentRepository
	ctx         context.Context
}

func (s *InitiatorTestSuite) SetupSuite() {
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
}

func (s *InitiatorTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *InitiatorTestSuite) SetupTest() {
	for _, table := range []string{"audit_logs", "contributions", "payments", "service_requests", "projects"} {
		_, err := s.pool.Exec(s.ctx, "DELETE FROM "+table)
		if err != nil {
			log.Fatalf("error truncating %s table: %s", table, err)
		}
	}
}

func (s *InitiatorTestSuite) newInitiator(baseURL string) *initiation.Initiator {
	gw := gateway.NewClient(config.Gateway{BaseURL: baseURL, CallbackURL: "https://miprojet.example.com/webhook"}, slog.Default())
	return initiation.NewInitiator(s.repo, gw, slog.Default())
}

func (s *InitiatorTestSuite) TestInitiate_SimulatedModeWithoutCredentials() {
	t := s.T()
	t.Setenv("MONEYFUSION_API_KEY", "")

	sut := s.newInitiator("")
	userID := uuid.New()

	result, err := sut.Initiate(s.ctx, userID, initiation.Request{
		Amount:        10000,
		PaymentMethod: "orange_money",
		PhoneNumber:   "+22501020304",
	})
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusPending, result.Payment.Status)
	assert.Equal(t, "XOF", result.Payment.Currency)
	assert.True(t, strings.HasPrefix(result.Payment.PaymentReference, "MIPROJET-"))
	assert.Equal(t, true, result.ExternalResponse["simulated"])
	assert.Empty(t, result.GatewayError)

	stored, err := s.repo.GetByID(s.ctx, result.Payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, "+22501020304", stored.Metadata["phoneNumber"])

	auditEntries, err := s.repo.CountAuditLogsByRecordID(s.ctx, result.Payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, auditEntries)
}

func (s *InitiatorTestSuite) TestInitiate_ValidationErrors() {
	t := s.T()

	sut := s.newInitiator("")

	_, err := sut.Initiate(s.ctx, uuid.New(), initiation.Request{Amount: 0, PaymentMethod: "card"})
	assert.ErrorIs(t, err, initiation.ErrInvalidAmount)

	_, err = sut.Initiate(s.ctx, uuid.New(), initiation.Request{Amount: -5, PaymentMethod: "card"})
	assert.ErrorIs(t, err, initiation.ErrInvalidAmount)

	_, err = sut.Initiate(s.ctx, uuid.New(), initiation.Request{Amount: 10000})
	assert.ErrorIs(t, err, initiation.ErrMissingPaymentMethod)
}

func (s *InitiatorTestSuite) TestInitiate_GatewayFailureKeepsPendingRecord() {
	t := s.T()
	t.Setenv("MONEYFUSION_API_KEY", "test-api-key")

	defer gock.Off()
	gock.New("http://gateway.test").
		Post("/v1/transactions").
		Reply(500).
		JSON(map[string]string{"error": "boom"})

	sut := s.newInitiator("http://gateway.test")

	result, err := sut.Initiate(s.ctx, uuid.New(), initiation.Request{
		Amount:        10000,
		PaymentMethod: "orange_money",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, result.GatewayError)

	// The local pending record survives the gateway failure; the gateway may
	// still deliver a webhook against the reference.
	stored, err := s.repo.GetByID(s.ctx, result.Payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)

	assert.True(t, gock.IsDone())
}

func (s *InitiatorTestSuite) TestInitiate_GatewaySuccessReturnsPaymentURL() {
	t := s.T()
	t.Setenv("MONEYFUSION_API_KEY", "test-api-key")

	defer gock.Off()
	gock.New("http://gateway.test").
		Post("/v1/transactions").
		Reply(200).
		JSON(map[string]string{
			"transaction_id": "tx-55",
			"status":         "pending",
			"payment_url":    "https://gateway.test/pay/tx-55",
		})

	sut := s.newInitiator("http://gateway.test")

	projectID := uuid.New()
	_, err := s.pool.Exec(s.ctx, `INSERT INTO projects (id, title, funds_raised) VALUES ($1, 'Solar kiosk', 0)`, projectID)
	assert.NoError(t, err)

	result, err := sut.Initiate(s.ctx, uuid.New(), initiation.Request{
		Amount:        10000,
		PaymentMethod: "orange_money",
		ProjectID:     &projectID,
	})
	assert.NoError(t, err)
	assert.Empty(t, result.GatewayError)
	assert.Equal(t, "tx-55", result.ExternalResponse["transaction_id"])
	assert.Equal(t, "https://gateway.test/pay/tx-55", result.ExternalResponse["payment_url"])

	assert.True(t, gock.IsDone())
}

func TestInitiatorTestSuite(t *testing.T) {
	suite.Run(t, new(InitiatorTestSuite))
}
