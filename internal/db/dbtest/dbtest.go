//go:build integration

// Package dbtest runs a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sudo-init-do/dutydinar/internal/db"
)

// Start boots a Postgres container, points db.Conn at it and applies the
// schema. The returned func tears everything down.
func Start(ctx context.Context) (func(), error) {
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dutydinar_test"),
		postgres.WithUsername("dutydinar"),
		postgres.WithPassword("dutydinar"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}
	if err := db.Init(ctx, dsn); err != nil {
		_ = pg.Terminate(ctx)
		return nil, err
	}

	return func() {
		db.Close()
		_ = pg.Terminate(context.Background())
	}, nil
}

// Reset empties every table between tests.
func Reset(t *testing.T) {
	t.Helper()
	_, err := db.Conn.Exec(context.Background(), `
		TRUNCATE users, sessions, products, events, cart, wishlist, orders, order_items,
			order_item_status, payments, event_bookings, conversations,
			conversation_participants, messages, reviews, password_reset_codes
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// User inserts an account and returns its id. The password hash is not a
// valid bcrypt value, so these users cannot log in.
func User(t *testing.T, name, email, userType string) int64 {
	t.Helper()
	var id int64
	err := db.Conn.QueryRow(context.Background(), `
		INSERT INTO users (name, email, password, user_type, company_name)
		VALUES ($1, $2, 'x', $3, $4) RETURNING id
	`, name, email, userType, name+" Ltd").Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}
