package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/quill/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"not null violation", &pgconn.PgError{Code: "23502"}, models.ErrBadRequest},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, models.ErrServiceUnavailable},
		{"deadline exceeded", context.DeadlineExceeded, models.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, MapPostgresError(tt.err), tt.want)
		})
	}
}

func TestMapPostgresError_PassThrough(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))

	other := errors.New("connection reset")
	assert.Equal(t, other, MapPostgresError(other))
}

func TestConn_FallsBackWithoutTransaction(t *testing.T) {
	var fallback Querier
	assert.Nil(t, Conn(context.Background(), fallback))
}
