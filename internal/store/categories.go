// SPDX-License-Identifier: AGPL-3.0-or-later
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const categoryColumns = `id, name, description, created_at, updated_at`

// Categories reads and writes the categories table.
type Categories struct {
	db *sqlx.DB
}

func NewCategories(db *sqlx.DB) *Categories { return &Categories{db: db} }

func (s *Categories) Create(ctx context.Context, c *Category) error {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Description, ts, ts)
	if err != nil {
		return fmt.Errorf("create category: %w", translate(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	c.ID, c.CreatedAt, c.UpdatedAt = id, ts, ts
	return nil
}

func (s *Categories) Get(ctx context.Context, id int64) (*Category, error) {
	var c Category
	if err := s.db.GetContext(ctx, &c, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, translate(err))
	}
	return &c, nil
}

// List returns all categories ordered by name.
func (s *Categories) List(ctx context.Context) ([]Category, error) {
	cats := []Category{}
	if err := s.db.SelectContext(ctx, &cats, `SELECT `+categoryColumns+` FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", translate(err))
	}
	return cats, nil
}

func (s *Categories) Update(ctx context.Context, c *Category) error {
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, ts, c.ID)
	if err != nil {
		return fmt.Errorf("update category %d: %w", c.ID, translate(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("update category %d: %w", c.ID, err)
	}
	c.UpdatedAt = ts
	return nil
}

func (s *Categories) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, translate(err))
	}
	if err := affected(res); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

// affected turns a zero-row update/delete into ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
