package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"bilancio/internal/core"
)

// SetCategoryBudget stores the default allocation of a category.
func (r *SQLiteRepository) SetCategoryBudget(ctx context.Context, categoryID int64, allocation core.Money) error {
	if allocation.Cents < 0 {
		return core.Validation("budget allocation cannot be negative")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO category_budgets (category_id, allocation_cents) VALUES (?, ?)
		 ON CONFLICT(category_id) DO UPDATE SET allocation_cents = excluded.allocation_cents`,
		categoryID, allocation.Cents)
	if err != nil {
		return core.Persistence("set category budget", err)
	}
	return nil
}

func (r *SQLiteRepository) GetCategoryBudget(ctx context.Context, categoryID int64) (core.CategoryBudget, error) {
	b := core.CategoryBudget{CategoryID: categoryID}
	err := r.db.QueryRowContext(ctx,
		`SELECT allocation_cents FROM category_budgets WHERE category_id = ?`, categoryID).Scan(&b.Allocation.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return b, core.NotFound("category budget", categoryID)
	}
	if err != nil {
		return b, core.Persistence("get category budget", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListCategoryBudgets(ctx context.Context) ([]core.CategoryBudget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category_id, allocation_cents FROM category_budgets ORDER BY category_id`)
	if err != nil {
		return nil, core.Persistence("list category budgets", err)
	}
	defer rows.Close()

	var out []core.CategoryBudget
	for rows.Next() {
		var b core.CategoryBudget
		if err := rows.Scan(&b.CategoryID, &b.Allocation.Cents); err != nil {
			return nil, core.Persistence("list category budgets: scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list category budgets", err)
	}
	return out, nil
}

const monthlyBudgetColumns = `id, category_id, year, month, allocation_cents, residual_cents`

func scanMonthlyBudget(s rowScanner) (core.MonthlyBudget, error) {
	var b core.MonthlyBudget
	err := s.Scan(&b.ID, &b.CategoryID, &b.Year, &b.Month, &b.Allocation.Cents, &b.Residual.Cents)
	return b, err
}

func (r *SQLiteRepository) GetMonthlyBudget(ctx context.Context, categoryID int64, key core.PeriodKey) (core.MonthlyBudget, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+monthlyBudgetColumns+` FROM monthly_budgets WHERE category_id = ? AND year = ? AND month = ?`,
		categoryID, key.Year, key.Month)
	b, err := scanMonthlyBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, core.NotFound("monthly budget", key.String())
	}
	if err != nil {
		return b, core.Persistence("get monthly budget", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListMonthlyBudgets(ctx context.Context, key core.PeriodKey) ([]core.MonthlyBudget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+monthlyBudgetColumns+` FROM monthly_budgets WHERE year = ? AND month = ? ORDER BY category_id`,
		key.Year, key.Month)
	if err != nil {
		return nil, core.Persistence("list monthly budgets", err)
	}
	defer rows.Close()

	var out []core.MonthlyBudget
	for rows.Next() {
		b, err := scanMonthlyBudget(rows)
		if err != nil {
			return nil, core.Persistence("list monthly budgets: scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list monthly budgets", err)
	}
	return out, nil
}

// CreateMonthlyBudget inserts a monthly row unless one already exists and
// returns the stored row.
func (r *SQLiteRepository) CreateMonthlyBudget(ctx context.Context, b core.MonthlyBudget) (core.MonthlyBudget, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monthly_budgets (category_id, year, month, allocation_cents, residual_cents)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(category_id, year, month) DO NOTHING`,
		b.CategoryID, b.Year, b.Month, b.Allocation.Cents, b.Residual.Cents)
	if err != nil {
		return b, core.Persistence("create monthly budget", err)
	}
	return r.GetMonthlyBudget(ctx, b.CategoryID, core.PeriodKey{Year: b.Year, Month: b.Month})
}

// SetMonthlyAllocation overrides the allocation of one category in one month.
func (r *SQLiteRepository) SetMonthlyAllocation(ctx context.Context, categoryID int64, key core.PeriodKey, allocation core.Money) error {
	if allocation.Cents < 0 {
		return core.Validation("budget allocation cannot be negative")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO monthly_budgets (category_id, year, month, allocation_cents) VALUES (?, ?, ?, ?)
		 ON CONFLICT(category_id, year, month) DO UPDATE SET allocation_cents = excluded.allocation_cents`,
		categoryID, key.Year, key.Month, allocation.Cents)
	if err != nil {
		return core.Persistence("set monthly allocation", err)
	}
	return nil
}

// SaveResiduals writes the residual of every given row in one transaction.
func (r *SQLiteRepository) SaveResiduals(ctx context.Context, budgets []core.MonthlyBudget) error {
	if len(budgets) == 0 {
		return nil
	}
	err := r.withTx(ctx, "save residuals", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO monthly_budgets (category_id, year, month, allocation_cents, residual_cents)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(category_id, year, month) DO UPDATE SET residual_cents = excluded.residual_cents`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range budgets {
			if _, err := stmt.ExecContext(ctx, b.CategoryID, b.Year, b.Month, b.Allocation.Cents, b.Residual.Cents); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Budget residuals saved", "count", len(budgets), "year", budgets[0].Year, "month", budgets[0].Month)
	return nil
}
