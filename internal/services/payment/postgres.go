package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"restaurant-pos/internal/database"
	"restaurant-pos/internal/models"
)

const uniqueViolationCode = "23505"

// PostgresPaymentRepository stores payments in PostgreSQL
type PostgresPaymentRepository struct {
	db *database.DB
}

// NewPostgresPaymentRepository creates a Postgres-backed payment repository
func NewPostgresPaymentRepository(db *database.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, database.InsertPaymentSQL,
		p.ID, p.OrderID, p.TerminalID, p.Status, p.Method,
		database.Numeric(p.Amount), database.Numeric(p.TipAmount), database.Numeric(p.TotalAmount),
		p.TransactionID, p.AuthorizationCode, p.CreatedAt, p.ProcessedAt,
		p.Synced, p.SyncedAt, p.RetryCount, p.IdempotencyKey, p.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.ErrDuplicate
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for pos, split := range p.Splits {
		_, err := tx.Exec(ctx, database.InsertPaymentSplitSQL,
			split.ID, p.ID, pos, split.CustomerID,
			database.Numeric(split.Amount), split.Method, split.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to insert payment split: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresPaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	return r.getBy(ctx, database.GetPaymentSQL, id)
}

func (r *PostgresPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	return r.getBy(ctx, database.GetPaymentByIdempotencyKeySQL, key)
}

func (r *PostgresPaymentRepository) Update(ctx context.Context, p *models.Payment) error {
	tag, err := r.db.Pool.Exec(ctx, database.UpdatePaymentSQL,
		p.ID, p.Status, p.TransactionID, p.AuthorizationCode, p.ProcessedAt,
		p.Synced, p.SyncedAt, p.RetryCount, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}
	p.Version++
	return nil
}

func (r *PostgresPaymentRepository) getBy(ctx context.Context, query, arg string) (*models.Payment, error) {
	var p models.Payment
	var amount, tip, total pgtype.Numeric

	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.OrderID, &p.TerminalID, &p.Status, &p.Method,
		&amount, &tip, &total,
		&p.TransactionID, &p.AuthorizationCode, &p.CreatedAt, &p.ProcessedAt,
		&p.Synced, &p.SyncedAt, &p.RetryCount, &p.IdempotencyKey, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Amount = database.Decimal(amount)
	p.TipAmount = database.Decimal(tip)
	p.TotalAmount = database.Decimal(total)

	if err := r.loadSplits(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentRepository) loadSplits(ctx context.Context, p *models.Payment) error {
	rows, err := r.db.Query(ctx, database.GetPaymentSplitsSQL, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load payment splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.PaymentSplit
		var amount pgtype.Numeric
		if err := rows.Scan(&s.ID, &s.CustomerID, &amount, &s.Method, &s.TransactionID); err != nil {
			return fmt.Errorf("failed to scan payment split: %w", err)
		}
		s.Amount = database.Decimal(amount)
		p.Splits = append(p.Splits, s)
	}
	return rows.Err()
}

// PostgresQueueRepository stores offline payment queue entries in PostgreSQL
type PostgresQueueRepository struct {
	db *database.DB
}

// NewPostgresQueueRepository creates a Postgres-backed queue repository
func NewPostgresQueueRepository(db *database.DB) *PostgresQueueRepository {
	return &PostgresQueueRepository{db: db}
}

func (r *PostgresQueueRepository) Create(ctx context.Context, e *models.OfflinePaymentQueueEntry) error {
	err := r.db.Exec(ctx, database.InsertQueueEntrySQL,
		e.ID, e.PaymentID, e.OrderID, e.PaymentData, e.QueuedAt,
		e.RetryCount, e.LastRetryAt, e.NextRetryAt, e.Status)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

func (r *PostgresQueueRepository) Update(ctx context.Context, e *models.OfflinePaymentQueueEntry) error {
	err := r.db.Exec(ctx, database.UpdateQueueEntrySQL,
		e.ID, e.Status, e.RetryCount, e.LastRetryAt, e.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	return nil
}

func (r *PostgresQueueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.OfflinePaymentQueueEntry, error) {
	rows, err := r.db.Query(ctx, database.ListDueQueueEntriesSQL, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.OfflinePaymentQueueEntry
	for rows.Next() {
		var e models.OfflinePaymentQueueEntry
		err := rows.Scan(&e.ID, &e.PaymentID, &e.OrderID, &e.PaymentData, &e.QueuedAt,
			&e.RetryCount, &e.LastRetryAt, &e.NextRetryAt, &e.Status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
