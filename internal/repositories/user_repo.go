package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/quill/internal/database"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name,
	u.is_active, u.email_verified, u.failed_login_count, u.locked_until, u.last_login,
	u.password_reset_token, u.password_reset_expires, u.created_at, u.updated_at,
	ARRAY(SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = u.id ORDER BY r.name)`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var roles []string

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.IsActive, &user.EmailVerified, &user.FailedLoginCount, &user.LockedUntil, &user.LastLogin,
		&user.PasswordResetToken, &user.PasswordResetExpires, &user.CreatedAt, &user.UpdatedAt,
		&roles,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.Roles = models.NewRoleSet(roles...)
	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}

	return users, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE ` + where
	return scanUserRow(database.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return r.getOne(ctx, `u.id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `u.email = $1`, email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `u.username = $1`, username)
}

// GetByIdentifier looks a user up by username or email address.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return r.getOne(ctx, `u.username = $1::text OR u.email = lower($1::text)`, identifier)
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u ORDER BY u.created_at DESC LIMIT $1 OFFSET $2`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", database.MapPostgresError(err))
	}

	return scanUserRows(rows)
}

// ExistsByEmailOrUsername reports which of the two identifiers is already taken.
func (r *UserRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE email = $1),
			EXISTS(SELECT 1 FROM users WHERE username = $2)
	`

	err = database.Conn(ctx, r.pool).QueryRow(ctx, query, email, username).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return false, false, database.MapPostgresError(err)
	}
	return emailTaken, usernameTaken, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, is_active, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id string
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.IsActive, user.EmailVerified, user.CreatedAt, user.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return r.GetByID(ctx, id)
}

// LockoutState is the counter state after a failed login was recorded.
type LockoutState struct {
	FailedLoginCount int
	LockedUntil      *time.Time
}

// RecordLoginFailure atomically increments the failure counter. When the new
// count reaches threshold the account is locked until lockUntil. A failure
// after a previous lock has lapsed starts a fresh count at 1.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (*LockoutState, error) {
	query := `
		WITH next AS (
			SELECT id,
				CASE WHEN locked_until IS NOT NULL AND locked_until <= $2
					THEN 1 ELSE failed_login_count + 1 END AS count,
				CASE WHEN locked_until IS NOT NULL AND locked_until <= $2
					THEN NULL ELSE locked_until END AS locked_until
			FROM users WHERE id = $1
			FOR UPDATE
		)
		UPDATE users u SET
			failed_login_count = next.count,
			locked_until = CASE WHEN next.count >= $3 THEN $4 ELSE next.locked_until END,
			updated_at = $2
		FROM next
		WHERE u.id = next.id
		RETURNING u.failed_login_count, u.locked_until
	`

	var state LockoutState
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, id, now, threshold, lockUntil).
		Scan(&state.FailedLoginCount, &state.LockedUntil)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &state, nil
}

// RecordLoginSuccess clears the lockout counter and stamps last_login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE users SET failed_login_count = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetPasswordResetToken stores the digest of a new reset token, replacing any
// outstanding one.
func (r *UserRepository) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users SET password_reset_token = $2, password_reset_expires = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ConsumePasswordResetToken swaps in passwordHash for the user holding an
// unexpired reset token and clears the token in the same statement. It
// returns the user id, or ErrNotFound when no live token matched.
func (r *UserRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	query := `
		UPDATE users SET
			password_hash = $2,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = $3
		WHERE password_reset_token = $1 AND password_reset_expires > $3
		RETURNING id
	`

	var id string
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, tokenHash, passwordHash, now).Scan(&id)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return id, nil
}

// UpdateProfile replaces the display names of a user and returns the updated row
func (r *UserRepository) UpdateProfile(ctx context.Context, id, firstName, lastName string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `
		UPDATE users u SET first_name = $2, last_name = $3, updated_at = NOW()
		WHERE u.id = $1
		RETURNING ` + userColumns

	return scanUserRow(database.Conn(ctx, r.pool).QueryRow(ctx, query, id, firstName, lastName))
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, id, active)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
