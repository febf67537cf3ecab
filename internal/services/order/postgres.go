package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"restaurant-pos/internal/database"
	"restaurant-pos/internal/models"
)

// PostgresRepository stores orders in PostgreSQL. Items and their
// modifications are replaced wholesale inside the same transaction as
// the order row so the aggregate is never observable half-written.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a Postgres-backed order repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, database.InsertOrderSQL,
		o.ID, o.TableID, o.ServerID, o.TerminalID, o.Status,
		database.Numeric(o.Subtotal), database.Numeric(o.Tax), database.Numeric(o.Total),
		o.CreatedAt, o.UpdatedAt, o.Synced, o.SyncedAt, o.Version)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := r.scanOrder(r.db.QueryRow(ctx, database.GetOrderSQL, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) Update(ctx context.Context, o *models.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.UpdateOrderSQL,
		o.ID, o.Status,
		database.Numeric(o.Subtotal), database.Numeric(o.Tax), database.Numeric(o.Total),
		o.UpdatedAt, o.Synced, o.SyncedAt, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, database.DeleteOrderItemsSQL, o.ID); err != nil {
		return fmt.Errorf("failed to clear order items: %w", err)
	}
	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *PostgresRepository) ListUnsynced(ctx context.Context) ([]*models.Order, error) {
	rows, err := r.db.Query(ctx, database.ListUnsyncedOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *PostgresRepository) scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var subtotal, tax, total pgtype.Numeric

	err := row.Scan(&o.ID, &o.TableID, &o.ServerID, &o.TerminalID, &o.Status,
		&subtotal, &tax, &total,
		&o.CreatedAt, &o.UpdatedAt, &o.Synced, &o.SyncedAt, &o.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.Subtotal = database.Decimal(subtotal)
	o.Tax = database.Decimal(tax)
	o.Total = database.Decimal(total)
	return &o, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var unitPrice, totalPrice pgtype.Numeric

		err := rows.Scan(&item.ID, &item.MenuItemID, &item.Name, &item.Quantity,
			&unitPrice, &totalPrice, &item.Status, &item.CourseType, &item.SentToKitchenAt)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		item.UnitPrice = database.Decimal(unitPrice)
		item.TotalPrice = database.Decimal(totalPrice)
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range o.Items {
		mods, err := r.loadModifications(ctx, o.Items[i].ID)
		if err != nil {
			return err
		}
		o.Items[i].Modifications = mods
	}
	return nil
}

func (r *PostgresRepository) loadModifications(ctx context.Context, itemID string) ([]models.ItemModification, error) {
	rows, err := r.db.Query(ctx, database.GetItemModificationsSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item modifications: %w", err)
	}
	defer rows.Close()

	var mods []models.ItemModification
	for rows.Next() {
		var m models.ItemModification
		var adj pgtype.Numeric
		if err := rows.Scan(&m.ModificationID, &m.Name, &adj); err != nil {
			return nil, fmt.Errorf("failed to scan item modification: %w", err)
		}
		m.PriceAdjustment = database.Decimal(adj)
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	for pos, item := range o.Items {
		_, err := tx.Exec(ctx, database.InsertOrderItemSQL,
			item.ID, o.ID, pos, item.MenuItemID, item.Name, item.Quantity,
			database.Numeric(item.UnitPrice), database.Numeric(item.TotalPrice),
			item.Status, item.CourseType, item.SentToKitchenAt)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
		for mpos, m := range item.Modifications {
			_, err := tx.Exec(ctx, database.InsertItemModificationSQL,
				item.ID, mpos, m.ModificationID, m.Name, database.Numeric(m.PriceAdjustment))
			if err != nil {
				return fmt.Errorf("failed to insert item modification: %w", err)
			}
		}
	}
	return nil
}
