package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/quill/internal/database"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenBlacklistRepository struct {
	pool *pgxpool.Pool
}

func NewTokenBlacklistRepository(db *database.DB) *TokenBlacklistRepository {
	return &TokenBlacklistRepository{pool: db.Pool}
}

// Add blacklists a token digest. Re-adding an existing digest is a no-op.
func (r *TokenBlacklistRepository) Add(ctx context.Context, entry *models.BlacklistedToken) error {
	query := `
		INSERT INTO token_blacklist (token_hash, user_id, blacklisted_at, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO NOTHING
	`

	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		entry.TokenHash, entry.UserID, entry.BlacklistedAt, entry.ExpiresAt, entry.Reason,
	)
	return database.MapPostgresError(err)
}

// IsBlacklisted checks if a token digest is in the blacklist
func (r *TokenBlacklistRepository) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token_hash = $1)`

	var exists bool
	if err := database.Conn(ctx, r.pool).QueryRow(ctx, query, tokenHash).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// DeleteExpired removes entries whose token would have expired anyway (call periodically)
func (r *TokenBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM token_blacklist WHERE expires_at <= $1`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
