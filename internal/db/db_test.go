package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorHelpers(t *testing.T) {
	check := fmt.Errorf("reserve: %w", &pgconn.PgError{Code: "23514", ConstraintName: "events_available_tickets_check"})
	assert.True(t, IsCheckViolation(check))
	assert.False(t, IsUniqueViolation(check))
	assert.Equal(t, "events_available_tickets_check", ConstraintName(check))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))

	plain := errors.New("boom")
	assert.False(t, IsCheckViolation(plain))
	assert.Empty(t, ConstraintName(plain))
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("load: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}
