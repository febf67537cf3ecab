package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, table_id, server_id, terminal_id, status, subtotal, tax, total,
			created_at, updated_at, synced, synced_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	UpdateOrderSQL = `
		UPDATE orders
		SET status = $2, subtotal = $3, tax = $4, total = $5, updated_at = $6,
			synced = $7, synced_at = $8, version = version + 1
		WHERE id = $1 AND version = $9`

	GetOrderSQL = `
		SELECT id, table_id, server_id, terminal_id, status, subtotal, tax, total,
			created_at, updated_at, synced, synced_at, version
		FROM orders WHERE id = $1`

	ListUnsyncedOrdersSQL = `
		SELECT id, table_id, server_id, terminal_id, status, subtotal, tax, total,
			created_at, updated_at, synced, synced_at, version
		FROM orders WHERE synced = FALSE
		ORDER BY created_at ASC`

	DeleteOrderItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	InsertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, position, menu_item_id, name, quantity,
			unit_price, total_price, status, course_type, sent_to_kitchen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	GetOrderItemsSQL = `
		SELECT id, menu_item_id, name, quantity, unit_price, total_price, status,
			course_type, sent_to_kitchen_at
		FROM order_items WHERE order_id = $1
		ORDER BY position ASC`

	InsertItemModificationSQL = `
		INSERT INTO item_modifications (order_item_id, position, modification_id, name, price_adjustment)
		VALUES ($1, $2, $3, $4, $5)`

	GetItemModificationsSQL = `
		SELECT modification_id, name, price_adjustment
		FROM item_modifications WHERE order_item_id = $1
		ORDER BY position ASC`
)

// Kitchen ticket queries
const (
	InsertTicketSQL = `
		INSERT INTO kitchen_tickets (id, order_id, table_id, status, priority, station_id,
			received_at, started_at, completed_at, estimated_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id) DO NOTHING`

	UpdateTicketSQL = `
		UPDATE kitchen_tickets
		SET status = $2, priority = $3, started_at = $4, completed_at = $5
		WHERE id = $1`

	GetTicketSQL = `
		SELECT id, order_id, table_id, status, priority, station_id,
			received_at, started_at, completed_at, estimated_minutes
		FROM kitchen_tickets WHERE id = $1`

	GetTicketByOrderSQL = `
		SELECT id, order_id, table_id, status, priority, station_id,
			received_at, started_at, completed_at, estimated_minutes
		FROM kitchen_tickets WHERE order_id = $1`

	ListActiveTicketsSQL = `
		SELECT id, order_id, table_id, status, priority, station_id,
			received_at, started_at, completed_at, estimated_minutes
		FROM kitchen_tickets
		WHERE status IN ('NEW', 'IN_PROGRESS')
		ORDER BY priority DESC, received_at ASC`

	InsertTicketItemSQL = `
		INSERT INTO ticket_items (id, ticket_id, position, order_item_id, item_name, quantity,
			modifications, status, course_type, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	UpdateTicketItemSQL = `
		UPDATE ticket_items
		SET status = $2, started_at = $3, completed_at = $4
		WHERE id = $1`

	GetTicketItemsSQL = `
		SELECT id, order_item_id, item_name, quantity, modifications, status,
			course_type, started_at, completed_at
		FROM ticket_items WHERE ticket_id = $1
		ORDER BY position ASC`
)

// Payment queries
const (
	InsertPaymentSQL = `
		INSERT INTO payments (id, order_id, terminal_id, status, method, amount, tip_amount,
			total_amount, transaction_id, authorization_code, created_at, processed_at,
			synced, synced_at, retry_count, idempotency_key, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	UpdatePaymentSQL = `
		UPDATE payments
		SET status = $2, transaction_id = $3, authorization_code = $4, processed_at = $5,
			synced = $6, synced_at = $7, retry_count = $8, version = version + 1
		WHERE id = $1 AND version = $9`

	GetPaymentSQL = `
		SELECT id, order_id, terminal_id, status, method, amount, tip_amount, total_amount,
			transaction_id, authorization_code, created_at, processed_at, synced, synced_at,
			retry_count, idempotency_key, version
		FROM payments WHERE id = $1`

	GetPaymentByIdempotencyKeySQL = `
		SELECT id, order_id, terminal_id, status, method, amount, tip_amount, total_amount,
			transaction_id, authorization_code, created_at, processed_at, synced, synced_at,
			retry_count, idempotency_key, version
		FROM payments WHERE idempotency_key = $1`

	InsertPaymentSplitSQL = `
		INSERT INTO payment_splits (id, payment_id, position, customer_id, amount, method, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	GetPaymentSplitsSQL = `
		SELECT id, customer_id, amount, method, transaction_id
		FROM payment_splits WHERE payment_id = $1
		ORDER BY position ASC`
)

// Offline payment queue queries
const (
	InsertQueueEntrySQL = `
		INSERT INTO offline_payment_queue (id, payment_id, order_id, payment_data, queued_at,
			retry_count, last_retry_at, next_retry_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	UpdateQueueEntrySQL = `
		UPDATE offline_payment_queue
		SET status = $2, retry_count = $3, last_retry_at = $4, next_retry_at = $5
		WHERE id = $1`

	ListDueQueueEntriesSQL = `
		SELECT id, payment_id, order_id, payment_data, queued_at, retry_count,
			last_retry_at, next_retry_at, status
		FROM offline_payment_queue
		WHERE status = 'PENDING' AND next_retry_at <= $1
		ORDER BY queued_at ASC`
)
