package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"bilancio/internal/core"
)

const recurringColumns = `id, description, kind, amount_cents, day_of_month, cadence, due_month, category_id, skip_if_annual_overlap, active`

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string, kind core.EntryKind) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, core.Validation("category name is required")
	}
	if !kind.Valid() {
		return 0, core.Validation("invalid category kind %q", kind)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO categories (name, kind) VALUES (?, ?)`, name, string(kind))
	if err != nil {
		return 0, core.Persistence("create category", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var (
		c    core.Category
		kind string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, kind FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.NotFound("category", id)
	}
	if err != nil {
		return c, core.Persistence("get category", err)
	}
	c.Kind = core.EntryKind(kind)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, kind FROM categories ORDER BY name`)
	if err != nil {
		return nil, core.Persistence("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c    core.Category
			kind string
		)
		if err := rows.Scan(&c.ID, &c.Name, &kind); err != nil {
			return nil, core.Persistence("list categories: scan", err)
		}
		c.Kind = core.EntryKind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list categories", err)
	}
	return out, nil
}

func scanRecurring(s rowScanner) (core.RecurringDefinition, error) {
	var (
		d        core.RecurringDefinition
		kind     string
		cadence  string
		dueMonth sql.NullInt64
		category sql.NullInt64
		skip     int
		active   int
	)
	if err := s.Scan(&d.ID, &d.Description, &kind, &d.Amount.Cents, &d.DayOfMonth, &cadence, &dueMonth, &category, &skip, &active); err != nil {
		return d, err
	}
	d.Kind = core.EntryKind(kind)
	d.Cadence = core.Cadence(cadence)
	if dueMonth.Valid {
		d.DueMonth = int(dueMonth.Int64)
	}
	d.CategoryID = idPtr(category)
	d.SkipIfAnnualOverlap = skip != 0
	d.Active = active != 0
	return d, nil
}

func dueMonthArg(d core.RecurringDefinition) sql.NullInt64 {
	if d.Cadence != core.Annual || d.DueMonth == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.DueMonth), Valid: true}
}

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, d core.RecurringDefinition) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_definitions (description, kind, amount_cents, day_of_month, cadence, due_month, category_id, skip_if_annual_overlap, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Description, string(d.Kind), d.Amount.Cents, d.DayOfMonth, string(d.Cadence), dueMonthArg(d),
		nullableID(d.CategoryID), boolInt(d.SkipIfAnnualOverlap), boolInt(d.Active))
	if err != nil {
		return 0, core.Persistence("create recurring definition", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.Persistence("create recurring definition: last insert id", err)
	}
	slog.InfoContext(ctx, "Recurring definition created", "id", id, "description", d.Description, "cadence", d.Cadence)
	return id, nil
}

func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, d core.RecurringDefinition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_definitions
		 SET description = ?, kind = ?, amount_cents = ?, day_of_month = ?, cadence = ?, due_month = ?,
		     category_id = ?, skip_if_annual_overlap = ?, active = ?
		 WHERE id = ?`,
		d.Description, string(d.Kind), d.Amount.Cents, d.DayOfMonth, string(d.Cadence), dueMonthArg(d),
		nullableID(d.CategoryID), boolInt(d.SkipIfAnnualOverlap), boolInt(d.Active), d.ID)
	if err != nil {
		return core.Persistence("update recurring definition", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("recurring definition", d.ID)
	}
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, id int64) (core.RecurringDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_definitions WHERE id = ?`, id)
	d, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, core.NotFound("recurring definition", id)
	}
	if err != nil {
		return d, core.Persistence("get recurring definition", err)
	}
	return d, nil
}

// ListActiveRecurring returns the definitions the projector should expand.
func (r *SQLiteRepository) ListActiveRecurring(ctx context.Context) ([]core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringColumns+` FROM recurring_definitions WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, core.Persistence("list recurring definitions", err)
	}
	defer rows.Close()

	var out []core.RecurringDefinition
	for rows.Next() {
		d, err := scanRecurring(rows)
		if err != nil {
			return nil, core.Persistence("list recurring definitions: scan", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list recurring definitions", err)
	}
	return out, nil
}
