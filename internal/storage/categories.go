package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spendwise/internal/core"
)

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, color, icon, is_default FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &c.IsDefault); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, color, icon, is_default FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &c.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// EnsureCategory returns the category with c.Name, creating it when absent.
// Concurrent callers converge on the same row through the unique name.
func (r *Repository) EnsureCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if c.Color == "" {
		c.Color = "#6B7280"
	}
	if c.Icon == "" {
		c.Icon = "tag"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, color, icon, is_default) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		c.Name, c.Color, c.Icon, boolToInt(c.IsDefault))
	if err != nil {
		return core.Category{}, fmt.Errorf("ensure category %q: %w", c.Name, err)
	}

	var out core.Category
	err = r.db.QueryRowContext(ctx,
		`SELECT id, name, color, icon, is_default FROM categories WHERE name = ?`, c.Name).
		Scan(&out.ID, &out.Name, &out.Color, &out.Icon, &out.IsDefault)
	if err != nil {
		return core.Category{}, fmt.Errorf("load category %q: %w", c.Name, err)
	}
	return out, nil
}
