package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/nakit/internal/model"
)

const userColumns = `id, username, password_hash, role, failed_logins, locked_until, created_at, deleted_at`

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FailedLogins, &u.LockedUntil, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sql.DB, username, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username. Deleted accounts are returned
// too (the login path reports them as inactive), but an active account with
// the same name wins.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?
		 ORDER BY deleted_at IS NULL DESC, id DESC LIMIT 1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's role.
func UpdateUser(ctx context.Context, db *sql.DB, id int64, role string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword replaces a user's password hash unconditionally and
// clears the failure counters. Used for admin resets and password changes.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, failed_logins = 0, locked_until = NULL
		 WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// RecordLoginSuccess clears the failure counters.
func RecordLoginSuccess(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET failed_logins = 0, locked_until = NULL WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("recording login success: %w", err)
	}
	return nil
}

// RecordLoginFailure increments the failure counter in place.
func RecordLoginFailure(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET failed_logins = failed_logins + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}
	return nil
}

// UpgradePasswordHash swaps oldHash for newHash and clears the failure
// counters, but only if the stored hash still equals oldHash. It reports
// whether the swap happened.
func UpgradePasswordHash(ctx context.Context, db *sql.DB, id int64, oldHash, newHash string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, failed_logins = 0, locked_until = NULL
		 WHERE id = ? AND password_hash = ?`,
		newHash, id, oldHash,
	)
	if err != nil {
		return false, fmt.Errorf("upgrading password hash: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upgrading password hash: %w", err)
	}
	return n == 1, nil
}
