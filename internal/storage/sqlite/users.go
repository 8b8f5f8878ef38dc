package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fieldops/instalog/internal/models"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, username, password_hash, password_hash_type, role,
	is_active, created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (*models.WebUser, error) {
	var user models.WebUser
	var created, updated string
	var lastLogin sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.PasswordHashType,
		&user.Role, &user.IsActive, &created, &updated, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parseTime(created)
	user.UpdatedAt = parseTime(updated)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		user.LastLoginAt = &t
	}
	return &user, nil
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM web_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*models.WebUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM web_users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}

func (s *userStore) GetByUsername(ctx context.Context, username string) (*models.WebUser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM web_users WHERE username = ?`,
		strings.ToLower(username))
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %q: %w", username, err)
	}
	return user, nil
}

func (s *userStore) Insert(ctx context.Context, user *models.WebUser) (int64, error) {
	user.Username = strings.ToLower(user.Username)
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO web_users (username, password_hash, password_hash_type, role,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.PasswordHash, user.PasswordHashType, user.Role,
		user.IsActive, formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %q: %w", user.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return id, nil
}

func (s *userStore) List(ctx context.Context) ([]*models.WebUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM web_users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []*models.WebUser
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *userStore) Update(ctx context.Context, id int64, upd *models.WebUserUpdate) (bool, error) {
	var role sql.NullString
	if upd.Role != nil {
		role = sql.NullString{String: *upd.Role, Valid: true}
	}
	var active sql.NullBool
	if upd.IsActive != nil {
		active = sql.NullBool{Bool: *upd.IsActive, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE web_users
		SET role = COALESCE(?, role),
			is_active = COALESCE(?, is_active),
			updated_at = ?
		WHERE id = ?`, role, active, formatTime(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdatePassword replaces hash and type in one statement, keeping the
// at-most-one-active-hash invariant.
func (s *userStore) UpdatePassword(ctx context.Context, id int64, hash, hashType string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE web_users SET password_hash = ?, password_hash_type = ?, updated_at = ?
		WHERE id = ?`, hash, hashType, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update password for user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) UpdateLastLogin(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE web_users SET last_login_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update last login for user %d: %w", id, err)
	}
	return nil
}
