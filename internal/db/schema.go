package db

import (
	"context"
	"fmt"
	"log/slog"
)

// schema is applied in order on every start; each statement is idempotent.
var schema = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			user_type TEXT NOT NULL CHECK (user_type IN ('buyer', 'seller', 'admin')),
			company_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_type TEXT NOT NULL,
			username TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`},
	{"products", `
		CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			seller_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
			min_order_quantity INTEGER NOT NULL DEFAULT 1 CHECK (min_order_quantity >= 1),
			category TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id)`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			seller_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			event_date TIMESTAMPTZ NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			available_tickets INTEGER NOT NULL DEFAULT 0 CHECK (available_tickets >= 0),
			image_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_events_seller ON events(seller_id)`},
	{"cart", `
		CREATE TABLE IF NOT EXISTS cart (
			id BIGSERIAL PRIMARY KEY,
			buyer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
			event_id BIGINT REFERENCES events(id) ON DELETE CASCADE,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((product_id IS NULL) <> (event_id IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_buyer_product ON cart(buyer_id, product_id) WHERE product_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_buyer_event ON cart(buyer_id, event_id) WHERE event_id IS NOT NULL`},
	{"wishlist", `
		CREATE TABLE IF NOT EXISTS wishlist (
			id BIGSERIAL PRIMARY KEY,
			buyer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			product_id BIGINT REFERENCES products(id) ON DELETE CASCADE,
			event_id BIGINT REFERENCES events(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK ((product_id IS NULL) <> (event_id IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ux_wishlist_buyer_product ON wishlist(buyer_id, product_id) WHERE product_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS ux_wishlist_buyer_event ON wishlist(buyer_id, event_id) WHERE event_id IS NOT NULL`},
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			buyer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			order_type TEXT NOT NULL CHECK (order_type IN ('product', 'event')),
			total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'shipped', 'delivered', 'cancelled')),
			payment_method TEXT NOT NULL DEFAULT '',
			idempotency_key TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (buyer_id, idempotency_key)
		);
		CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at)`},
	{"order_items", `
		CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id BIGINT,
			event_id BIGINT,
			seller_id BIGINT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			CHECK ((product_id IS NULL) <> (event_id IS NULL))
		);
		CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
		CREATE INDEX IF NOT EXISTS idx_order_items_seller ON order_items(seller_id)`},
	{"order_item_status", `
		CREATE TABLE IF NOT EXISTS order_item_status (
			id BIGSERIAL PRIMARY KEY,
			order_item_id BIGINT NOT NULL UNIQUE REFERENCES order_items(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'shipped', 'delivered', 'cancelled')),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"payments", `
		CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			amount NUMERIC(12,2) NOT NULL,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"event_bookings", `
		CREATE TABLE IF NOT EXISTS event_bookings (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			order_id BIGINT REFERENCES orders(id) ON DELETE SET NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			booked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT ux_event_bookings_user_event UNIQUE (user_id, event_id)
		)`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			read_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`},
	{"reviews", `
		CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user_type TEXT NOT NULL,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, product_id)
		)`},
	{"password_reset_codes", `
		CREATE TABLE IF NOT EXISTS password_reset_codes (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL,
			reset_code TEXT NOT NULL,
			reset_token TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE password_reset_codes ADD COLUMN IF NOT EXISTS attempts INTEGER NOT NULL DEFAULT 0;
		CREATE INDEX IF NOT EXISTS idx_password_reset_email ON password_reset_codes(email)`},
}

// EnsureSchema creates every table and index that does not exist yet.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, step := range schema {
		if _, err := q.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("ensure %s schema: %w", step.name, err)
		}
	}
	slog.Info("database schema ensured", "tables", len(schema))
	return nil
}
