// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// Users reads and writes the users table.
type Users struct {
	db *sqlx.DB
}

func NewUsers(db *sqlx.DB) *Users { return &Users{db: db} }

// Create inserts u and fills in its ID and timestamps.
func (s *Users) Create(ctx context.Context, u *User) error {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, ts, ts)
	if err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID, u.CreatedAt, u.UpdatedAt = id, ts, ts
	return nil
}

func (s *Users) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, translate(err))
	}
	return &u, nil
}

func (s *Users) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username); err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, translate(err))
	}
	return &u, nil
}

// List returns all users ordered by ID.
func (s *Users) List(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list users: %w", translate(err))
	}
	return users, nil
}

// Update writes email and password hash for u.ID.
func (s *Users) Update(ctx context.Context, u *User) error {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.PasswordHash, ts, u.ID)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, translate(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	u.UpdatedAt = ts
	return nil
}

func (s *Users) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, translate(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}
