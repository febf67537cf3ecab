package kitchen

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"restaurant-pos/internal/database"
	"restaurant-pos/internal/models"
)

// PostgresRepository stores kitchen tickets in PostgreSQL. The unique
// constraint on order_id anchors the one-ticket-per-order rule even
// across service instances.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a Postgres-backed ticket repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.KitchenTicket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.InsertTicketSQL,
		t.ID, t.OrderID, t.TableID, t.Status, int(t.Priority), t.StationID,
		t.ReceivedAt, t.StartedAt, t.CompletedAt, t.EstimatedMinutes)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDuplicate
	}

	for pos, item := range t.Items {
		_, err := tx.Exec(ctx, database.InsertTicketItemSQL,
			item.ID, t.ID, pos, item.OrderItemID, item.ItemName, item.Quantity,
			item.Modifications, item.Status, item.CourseType, item.StartedAt, item.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ticket item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.KitchenTicket, error) {
	return r.getBy(ctx, database.GetTicketSQL, id)
}

func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) (*models.KitchenTicket, error) {
	return r.getBy(ctx, database.GetTicketByOrderSQL, orderID)
}

func (r *PostgresRepository) Update(ctx context.Context, t *models.KitchenTicket) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.UpdateTicketSQL,
		t.ID, t.Status, int(t.Priority), t.StartedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	for _, item := range t.Items {
		_, err := tx.Exec(ctx, database.UpdateTicketItemSQL,
			item.ID, item.Status, item.StartedAt, item.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to update ticket item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*models.KitchenTicket, error) {
	rows, err := r.db.Query(ctx, database.ListActiveTicketsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.KitchenTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range tickets {
		if err := r.loadItems(ctx, t); err != nil {
			return nil, err
		}
	}
	return tickets, nil
}

func (r *PostgresRepository) getBy(ctx context.Context, query, arg string) (*models.KitchenTicket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTicket(row pgx.Row) (*models.KitchenTicket, error) {
	var t models.KitchenTicket
	var priority int

	err := row.Scan(&t.ID, &t.OrderID, &t.TableID, &t.Status, &priority, &t.StationID,
		&t.ReceivedAt, &t.StartedAt, &t.CompletedAt, &t.EstimatedMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	t.Priority = models.TicketPriority(priority)
	return &t, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, t *models.KitchenTicket) error {
	rows, err := r.db.Query(ctx, database.GetTicketItemsSQL, t.ID)
	if err != nil {
		return fmt.Errorf("failed to load ticket items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TicketItem
		err := rows.Scan(&item.ID, &item.OrderItemID, &item.ItemName, &item.Quantity,
			&item.Modifications, &item.Status, &item.CourseType, &item.StartedAt, &item.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to scan ticket item: %w", err)
		}
		t.Items = append(t.Items, item)
	}
	return rows.Err()
}
