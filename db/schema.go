package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			is_super_admin BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS currencies (
			id UUID PRIMARY KEY,
			code VARCHAR(3) NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS ticketing_events (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			start_date_time TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS ticket_templates (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES ticketing_events(id),
			name VARCHAR(255) NOT NULL,
			is_free BOOLEAN NOT NULL,
			requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
			quantity INT,
			max_tickets_per_user INT,
			tags TEXT[] NOT NULL DEFAULT '{}'
		);

		CREATE TABLE IF NOT EXISTS ticket_prices (
			ticket_template_id UUID NOT NULL REFERENCES ticket_templates(id),
			currency_id UUID NOT NULL REFERENCES currencies(id),
			amount_cents BIGINT NOT NULL,
			PRIMARY KEY (ticket_template_id, currency_id)
		);

		CREATE TABLE IF NOT EXISTS addons (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL REFERENCES ticketing_events(id),
			name VARCHAR(255) NOT NULL,
			is_free BOOLEAN NOT NULL,
			is_unlimited BOOLEAN NOT NULL DEFAULT FALSE,
			total_stock INT,
			max_per_ticket INT
		);

		CREATE TABLE IF NOT EXISTS addon_prices (
			addon_id UUID NOT NULL REFERENCES addons(id),
			currency_id UUID NOT NULL REFERENCES currencies(id),
			amount_cents BIGINT NOT NULL,
			PRIMARY KEY (addon_id, currency_id)
		);

		CREATE TABLE IF NOT EXISTS addon_tickets (
			addon_id UUID NOT NULL REFERENCES addons(id),
			ticket_template_id UUID NOT NULL REFERENCES ticket_templates(id),
			order_display INT NOT NULL DEFAULT 0,
			PRIMARY KEY (addon_id, ticket_template_id)
		);

		CREATE TABLE IF NOT EXISTS addon_constraints (
			id UUID PRIMARY KEY,
			addon_id UUID NOT NULL REFERENCES addons(id),
			related_addon_id UUID NOT NULL REFERENCES addons(id),
			constraint_type VARCHAR(32) NOT NULL,
			UNIQUE (addon_id, related_addon_id, constraint_type)
		);

		CREATE TABLE IF NOT EXISTS purchase_orders (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			status VARCHAR(16) NOT NULL,
			payment_status VARCHAR(16) NOT NULL,
			payment_platform VARCHAR(16),
			external_reference_id VARCHAR(255),
			payment_link TEXT,
			external_status VARCHAR(64),
			currency_id UUID REFERENCES currencies(id),
			total_price_cents BIGINT,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS purchase_orders_unpaid_idx
			ON purchase_orders (payment_status, status);

		CREATE TABLE IF NOT EXISTS user_tickets (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			ticket_template_id UUID NOT NULL REFERENCES ticket_templates(id),
			purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id),
			approval_status VARCHAR(32) NOT NULL,
			redemption_status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS user_tickets_template_idx
			ON user_tickets (ticket_template_id, approval_status);

		CREATE TABLE IF NOT EXISTS user_ticket_addons (
			id UUID PRIMARY KEY,
			user_ticket_id UUID NOT NULL REFERENCES user_tickets(id),
			addon_id UUID NOT NULL REFERENCES addons(id),
			purchase_order_id UUID NOT NULL REFERENCES purchase_orders(id),
			quantity INT NOT NULL CHECK (quantity > 0),
			approval_status VARCHAR(16) NOT NULL,
			redemption_status VARCHAR(16) NOT NULL,
			unit_price_in_cents BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS user_ticket_addons_addon_idx
			ON user_ticket_addons (addon_id, approval_status);

		CREATE TABLE IF NOT EXISTS user_ticket_transfers (
			id UUID PRIMARY KEY,
			user_ticket_id UUID NOT NULL REFERENCES user_tickets(id),
			sender_user_id UUID NOT NULL REFERENCES users(id),
			recipient_user_id UUID NOT NULL REFERENCES users(id),
			status VARCHAR(16) NOT NULL,
			transfer_message TEXT,
			expiration_date TIMESTAMPTZ NOT NULL,
			is_return BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS events (
			event_id UUID PRIMARY KEY,
			published_at TIMESTAMPTZ NOT NULL,
			event_name VARCHAR(255) NOT NULL,
			event_payload JSONB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return nil
}
