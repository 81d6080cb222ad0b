package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/quill/internal/database"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository persists the token-hash to user mapping.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, token_hash, user_id, issued_at, expires_at, active, ip_address, user_agent`

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.TokenHash, &s.UserID, &s.IssuedAt, &s.ExpiresAt, &s.Active, &s.IPAddress, &s.UserAgent)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		session.ID, session.TokenHash, session.UserID, session.IssuedAt, session.ExpiresAt,
		session.Active, session.IPAddress, session.UserAgent,
	)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSessionRow(database.Conn(ctx, r.pool).QueryRow(ctx, query, tokenHash))
}

// Deactivate marks a session inactive. It reports whether an active row was changed.
func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	query := `UPDATE sessions SET active = FALSE WHERE token_hash = $1 AND active`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, tokenHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() > 0, nil
}

// DeactivateAllForUser deactivates every active session of a user and returns
// the rows it changed.
func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		UPDATE sessions SET active = FALSE
		WHERE user_id = $1 AND active
		RETURNING ` + sessionColumns

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return sessions, nil
}

// DeleteExpired removes sessions whose lifetime ended at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
