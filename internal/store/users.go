package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-service/internal/models"
)

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password, is_staff, is_superuser, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, user, query,
		user.Username, user.Email, user.Password, user.IsStaff, user.IsSuperuser, user.IsActive)
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE username = $1", username)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsers retrieves all users
func (s *Store) GetUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY id")
	return users, err
}

// GetProviders retrieves all staff users
func (s *Store) GetProviders(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users,
		"SELECT * FROM users WHERE is_staff = TRUE ORDER BY id")
	return users, err
}

// UpdateUser updates a user's email and active flag
func (s *Store) UpdateUser(ctx context.Context, userID int64, email string, isActive bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET email = $1, is_active = $2 WHERE id = $3",
		email, isActive, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, userID)
	}
	return nil
}

// DeleteUser deletes a user
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrUserNotFound, userID)
	}
	return nil
}

// CreateToken stores an auth token
func (s *Store) CreateToken(ctx context.Context, token *models.Token) error {
	return s.db.GetContext(ctx, token,
		`INSERT INTO tokens (key, user_id) VALUES ($1, $2)
		 RETURNING key, user_id, created_at`,
		token.Key, token.UserID)
}

// GetUserByToken resolves an auth token to its user
func (s *Store) GetUserByToken(ctx context.Context, key string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		`SELECT u.* FROM users u
		 JOIN tokens t ON t.user_id = u.id
		 WHERE t.key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, models.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteToken revokes a token
func (s *Store) DeleteToken(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE key = $1", key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrTokenNotFound
	}
	return nil
}
