package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"miprojet-payment-service/internal/payment"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrDuplicateReference = errors.New("payment reference already exists")
)

const paymentColumns = `id, user_id, amount, currency, payment_method, payment_reference,
	       project_id, service_request_id, status, metadata, created_at, updated_at`

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PaymentRepository) Create(ctx context.Context, entity *PaymentEntity) (*PaymentEntity, error) {
	query := `INSERT INTO payments (id, user_id, amount, currency, payment_method, payment_reference,
	                                project_id, service_request_id, status, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING created_at, updated_at`
	if entity.Metadata == nil {
		entity.Metadata = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, query,
		entity.ID, entity.UserID, entity.Amount, entity.Currency, entity.PaymentMethod,
		entity.PaymentReference, entity.ProjectID, entity.ServiceRequestID,
		entity.Status, entity.Metadata, time.Now(),
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, errors.Wrap(err, "inserting payment")
	}
	return entity, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentEntity, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// FindByReferenceOrExternalID locates a payment either by its own platform
// reference or by an external transaction id previously recorded in its
// metadata. Webhook deliveries do not always carry both.
func (r *PaymentRepository) FindByReferenceOrExternalID(ctx context.Context, reference, externalID string) (*PaymentEntity, error) {
	query := `SELECT ` + paymentColumns + `
	          FROM payments
	          WHERE ($1 <> '' AND payment_reference = $1)
	             OR ($2 <> '' AND metadata->>'externalTransactionId' = $2)
	          ORDER BY created_at DESC
	          LIMIT 1`
	return scanPayment(r.pool.QueryRow(ctx, query, reference, externalID))
}

func (r *PaymentRepository) SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*PaymentEntity, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, id))
}

// UpdateStatusAndMergeMetadata applies newStatus only when the current status
// is not terminal; a terminal payment keeps its status but still absorbs the
// metadata patch. Single conditional statement so two concurrent deliveries
// for the same payment cannot both win the transition.
func (r *PaymentRepository) UpdateStatusAndMergeMetadata(ctx context.Context, tx pgx.Tx, id uuid.UUID, newStatus payment.Status, patch map[string]any) (*PaymentEntity, error) {
	query := `UPDATE payments
	          SET status = CASE WHEN status = ANY($3) THEN status ELSE $2 END,
	              metadata = COALESCE(metadata, '{}'::jsonb) || $4,
	              updated_at = now()
	          WHERE id = $1
	          RETURNING ` + paymentColumns
	if patch == nil {
		patch = map[string]any{}
	}
	entity, err := scanPayment(tx.QueryRow(ctx, query, id, newStatus, payment.TerminalStatuses, patch))
	if err != nil {
		return nil, errors.Wrap(err, "updating payment status")
	}
	return entity, nil
}

// IncrementProjectFunds credits a project's raised-funds counter in place.
// The arithmetic happens inside the UPDATE so concurrent credits cannot lose
// each other's increments.
func (r *PaymentRepository) IncrementProjectFunds(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, amount int64) error {
	query := `UPDATE projects SET funds_raised = funds_raised + $2, updated_at = now() WHERE id = $1`
	tag, err := tx.Exec(ctx, query, projectID, amount)
	if err != nil {
		return errors.Wrap(err, "incrementing project funds")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("project %s not found", projectID)
	}
	return nil
}

func (r *PaymentRepository) GetProjectFundsRaised(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var funds int64
	err := r.pool.QueryRow(ctx, `SELECT funds_raised FROM projects WHERE id = $1`, projectID).Scan(&funds)
	return funds, err
}

// CreateContribution inserts the audit row for a completed project payment.
// The unique index on payment_reference makes a retried webhook a no-op;
// returns false when the row already existed.
func (r *PaymentRepository) CreateContribution(ctx context.Context, tx pgx.Tx, entity *ContributionEntity) (bool, error) {
	query := `INSERT INTO contributions (id, project_id, user_id, amount, type, payment_reference, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (payment_reference) DO NOTHING`
	tag, err := tx.Exec(ctx, query,
		entity.ID, entity.ProjectID, entity.UserID, entity.Amount, entity.Type,
		entity.PaymentReference, time.Now())
	if err != nil {
		return false, errors.Wrap(err, "inserting contribution")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PaymentRepository) CountContributionsByReference(ctx context.Context, reference string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM contributions WHERE payment_reference = $1`, reference).Scan(&count)
	return count, err
}

func (r *PaymentRepository) MarkServiceRequestPaid(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE service_requests SET status = 'paid', paid_at = now(), updated_at = now() WHERE id = $1`
	_, err := tx.Exec(ctx, query, id)
	return errors.Wrap(err, "marking service request paid")
}

func (r *PaymentRepository) GetServiceRequestStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM service_requests WHERE id = $1`, id).Scan(&status)
	return status, err
}

func (r *PaymentRepository) CreateAuditLog(ctx context.Context, tx pgx.Tx, entity *AuditLogEntity) error {
	query := `INSERT INTO audit_logs (id, action, table_name, record_id, user_id, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, query,
		entity.ID, entity.Action, entity.TableName, entity.RecordID, entity.UserID,
		entity.Details, time.Now())
	return errors.Wrap(err, "inserting audit log")
}

func (r *PaymentRepository) CountAuditLogsByRecordID(ctx context.Context, recordID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs WHERE record_id = $1`, recordID).Scan(&count)
	return count, err
}

func scanPayment(row pgx.Row) (*PaymentEntity, error) {
	var entity PaymentEntity
	err := row.Scan(&entity.ID, &entity.UserID, &entity.Amount, &entity.Currency,
		&entity.PaymentMethod, &entity.PaymentReference, &entity.ProjectID,
		&entity.ServiceRequestID, &entity.Status, &entity.Metadata,
		&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entity, nil
}
