package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/quill/internal/database"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{pool: db.Pool}
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT id, name, description FROM roles WHERE name = $1`

	var role models.Role
	err := database.Conn(ctx, r.pool).QueryRow(ctx, query, name).Scan(&role.ID, &role.Name, &role.Description)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT id, name, description FROM roles ORDER BY name`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", database.MapPostgresError(err))
	}
	return roles, nil
}

// AssignToUser links a role to a user. Assigning a role twice is a no-op.
func (r *RoleRepository) AssignToUser(ctx context.Context, userID string, roleID int) error {
	query := `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	if _, err := database.Conn(ctx, r.pool).Exec(ctx, query, userID, roleID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *RoleRepository) RemoveFromUser(ctx context.Context, userID string, roleID int) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`

	if _, err := database.Conn(ctx, r.pool).Exec(ctx, query, userID, roleID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}
