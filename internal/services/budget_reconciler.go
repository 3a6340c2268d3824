package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"bilancio/internal/core"
)

// BudgetReconciler compares category allocations with actual and planned spend.
type BudgetReconciler struct {
	entries         EntryStore
	budgets         BudgetStore
	summaries       SummaryStore
	categories      CategoryStore
	cal             core.Calendar
	overdueIsActual bool
}

func NewBudgetReconciler(store Store, cal core.Calendar, overdueIsActual bool) *BudgetReconciler {
	return &BudgetReconciler{
		entries:         store,
		budgets:         store,
		summaries:       store,
		categories:      store,
		cal:             cal,
		overdueIsActual: overdueIsActual,
	}
}

// ResidualFor returns the residual of one category in one financial month.
func (r *BudgetReconciler) ResidualFor(ctx context.Context, categoryID int64, key core.PeriodKey, today core.Date) (core.Residual, error) {
	allocation, err := r.allocation(ctx, categoryID, key)
	if err != nil {
		return core.Residual{}, err
	}
	w := r.cal.ForKey(key)
	entries, err := r.entries.ListEntries(ctx, w.Start, w.End)
	if err != nil {
		return core.Residual{}, err
	}
	res := r.residual(categoryID, key, allocation, entries, today)
	if c, err := r.categories.GetCategory(ctx, categoryID); err == nil {
		res.CategoryName = c.Name
	}
	return res, nil
}

// Residuals returns the residual of every budgeted category in the month,
// ordered by category id. Categories without an allocation are skipped.
func (r *BudgetReconciler) Residuals(ctx context.Context, key core.PeriodKey, today core.Date) ([]core.Residual, error) {
	ids, err := r.budgetedCategories(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	w := r.cal.ForKey(key)
	entries, err := r.entries.ListEntries(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	names := r.categoryNames(ctx)

	out := make([]core.Residual, 0, len(ids))
	for _, id := range ids {
		allocation, err := r.allocation(ctx, id, key)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Skipping category without budget", "category_id", id, "period", key.String())
			continue
		}
		if err != nil {
			return nil, err
		}
		res := r.residual(id, key, allocation, entries, today)
		res.CategoryName = names[id]
		out = append(out, res)
	}
	return out, nil
}

// PersistResiduals computes and stores every residual of the month in one batch.
func (r *BudgetReconciler) PersistResiduals(ctx context.Context, key core.PeriodKey, today core.Date) ([]core.Residual, error) {
	residuals, err := r.Residuals(ctx, key, today)
	if err != nil {
		return nil, err
	}
	rows := make([]core.MonthlyBudget, 0, len(residuals))
	for _, res := range residuals {
		rows = append(rows, core.MonthlyBudget{
			CategoryID: res.CategoryID,
			Year:       key.Year,
			Month:      key.Month,
			Allocation: res.Allocation,
			Residual:   res.Amount(),
		})
	}
	if err := r.budgets.SaveResiduals(ctx, rows); err != nil {
		return nil, err
	}
	return residuals, nil
}

// TotalPositiveResidual sums the unspent part of every budget in the month.
func (r *BudgetReconciler) TotalPositiveResidual(ctx context.Context, key core.PeriodKey, today core.Date) (core.Money, error) {
	residuals, err := r.Residuals(ctx, key, today)
	if err != nil {
		return core.Money{}, err
	}
	var total core.Money
	for _, res := range residuals {
		total = total.Add(res.Amount().PositivePart())
	}
	return total, nil
}

func (r *BudgetReconciler) residual(categoryID int64, key core.PeriodKey, allocation core.Money, entries []core.LedgerEntry, today core.Date) core.Residual {
	res := core.Residual{CategoryID: categoryID, Key: key, Allocation: allocation}
	for _, e := range entries {
		if e.Kind != core.Expense || e.CategoryID == nil || *e.CategoryID != categoryID {
			continue
		}
		if e.Happened(today, r.overdueIsActual) {
			res.Actual = res.Actual.Add(e.Amount)
		} else {
			res.Planned = res.Planned.Add(e.Amount)
		}
	}
	return res
}

// allocation reads the monthly allocation, creating it from the category
// default on first read unless the month is a seed period.
func (r *BudgetReconciler) allocation(ctx context.Context, categoryID int64, key core.PeriodKey) (core.Money, error) {
	mb, err := r.budgets.GetMonthlyBudget(ctx, categoryID, key)
	if err == nil {
		return mb.Allocation, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Money{}, err
	}

	def, err := r.budgets.GetCategoryBudget(ctx, categoryID)
	if err != nil {
		return core.Money{}, err
	}

	summary, err := r.summaries.GetSummary(ctx, key)
	switch {
	case err == nil && summary.IsSeed:
		return def.Allocation, nil
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return core.Money{}, err
	}

	created, err := r.budgets.CreateMonthlyBudget(ctx, core.MonthlyBudget{
		CategoryID: categoryID,
		Year:       key.Year,
		Month:      key.Month,
		Allocation: def.Allocation,
	})
	if err != nil {
		return core.Money{}, err
	}
	return created.Allocation, nil
}

func (r *BudgetReconciler) budgetedCategories(ctx context.Context, key core.PeriodKey) ([]int64, error) {
	defaults, err := r.budgets.ListCategoryBudgets(ctx)
	if err != nil {
		return nil, err
	}
	monthly, err := r.budgets.ListMonthlyBudgets(ctx, key)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(defaults)+len(monthly))
	var ids []int64
	for _, b := range defaults {
		if !seen[b.CategoryID] {
			seen[b.CategoryID] = true
			ids = append(ids, b.CategoryID)
		}
	}
	for _, b := range monthly {
		if !seen[b.CategoryID] {
			seen[b.CategoryID] = true
			ids = append(ids, b.CategoryID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *BudgetReconciler) categoryNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	cats, err := r.categories.ListCategories(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load category names", "error", err)
		return names
	}
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}
