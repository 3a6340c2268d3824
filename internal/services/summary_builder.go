package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"bilancio/internal/core"
)

// SummaryBuilder aggregates the entries of a financial month into a PeriodSummary.
type SummaryBuilder struct {
	entries         EntryStore
	summaries       SummaryStore
	settings        SettingsStore
	categories      CategoryStore
	budgets         *BudgetReconciler
	cal             core.Calendar
	overdueIsActual bool
}

func NewSummaryBuilder(store Store, budgets *BudgetReconciler, cal core.Calendar, overdueIsActual bool) *SummaryBuilder {
	return &SummaryBuilder{
		entries:         store,
		summaries:       store,
		settings:        store,
		categories:      store,
		budgets:         budgets,
		cal:             cal,
		overdueIsActual: overdueIsActual,
	}
}

// Compute aggregates the categorized entries of the month. Entries without a
// category are left out.
func (b *SummaryBuilder) Compute(ctx context.Context, key core.PeriodKey, today core.Date) (core.PeriodTotals, error) {
	w := b.cal.ForKey(key)
	entries, err := b.entries.ListEntries(ctx, w.Start, w.End)
	if err != nil {
		return core.PeriodTotals{}, err
	}

	totals := core.PeriodTotals{Key: key}
	for _, e := range entries {
		if e.CategoryID == nil {
			continue
		}
		switch e.Kind {
		case core.Income:
			totals.Income = totals.Income.Add(e.Amount)
		case core.Expense:
			totals.RawExpense = totals.RawExpense.Add(e.Amount)
		}
	}

	positive, err := b.budgets.TotalPositiveResidual(ctx, key, today)
	if err != nil {
		return core.PeriodTotals{}, err
	}
	totals.PositiveResidual = positive
	return totals, nil
}

// RegenerateSummary recomputes and stores the summary of one month. A new row
// starts at zero, or at the opening balance when no earlier summary exists.
// An existing row keeps its starting balance. Seed rows are returned untouched.
func (b *SummaryBuilder) RegenerateSummary(ctx context.Context, key core.PeriodKey, today core.Date) (core.PeriodSummary, error) {
	existing, err := b.summaries.GetSummary(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.PeriodSummary{}, err
	}
	if found && existing.IsSeed {
		return existing, nil
	}

	totals, err := b.Compute(ctx, key, today)
	if err != nil {
		return core.PeriodSummary{}, err
	}

	var starting core.Money
	if found {
		starting = existing.StartingBalance
	} else {
		starting, err = b.openingFor(ctx, key)
		if err != nil {
			return core.PeriodSummary{}, err
		}
	}

	s := core.PeriodSummary{
		Year:            key.Year,
		Month:           key.Month,
		StartingBalance: starting,
		IncomeTotal:     totals.Income,
		RawExpenseTotal: totals.RawExpense,
		ExpenseTotal:    totals.AdjustedExpense(),
	}
	s.Recompute()

	if err := b.summaries.UpsertSummary(ctx, s); err != nil {
		return core.PeriodSummary{}, err
	}
	slog.InfoContext(ctx, "Period summary regenerated",
		"period", key.String(),
		"starting_cents", s.StartingBalance.Cents,
		"income_cents", s.IncomeTotal.Cents,
		"expense_cents", s.ExpenseTotal.Cents,
		"ending_cents", s.EndingBalance.Cents)
	return s, nil
}

// openingFor returns the global opening balance if key is the first period of
// the dataset, zero otherwise.
func (b *SummaryBuilder) openingFor(ctx context.Context, key core.PeriodKey) (core.Money, error) {
	earlier, err := b.summaries.HasSummaryBefore(ctx, key)
	if err != nil || earlier {
		return core.Money{}, err
	}
	opening, ok, err := b.settings.GetOpeningBalance(ctx)
	if err != nil || !ok {
		return core.Money{}, err
	}
	return opening, nil
}

// PeriodDetail is the full picture of one financial month.
type PeriodDetail struct {
	Key     core.PeriodKey
	Window  core.Window
	Label   string
	Future  bool // the month has not started yet
	Summary *core.PeriodSummary

	Executed []core.LedgerEntry
	Pending  []core.LedgerEntry

	ExecutedIncome  core.Money
	ExecutedExpense core.Money
	PendingIncome   core.Money
	PendingExpense  core.Money

	Budgets          []core.Residual
	PositiveResidual core.Money

	StartingBalance core.Money
	CurrentBalance  core.Money
	ProjectedEnding core.Money
}

// Detail splits the month into executed and pending entries and reports the
// budget position with current and projected balances.
func (b *SummaryBuilder) Detail(ctx context.Context, key core.PeriodKey, today core.Date) (PeriodDetail, error) {
	w := b.cal.ForKey(key)
	d := PeriodDetail{
		Key:    key,
		Window: w,
		Label:  w.Label(),
		Future: w.Start.After(today.Time),
	}

	entries, err := b.entries.ListEntries(ctx, w.Start, w.End)
	if err != nil {
		return d, err
	}
	for _, e := range entries {
		// Uncategorized entries stay out of the household view, as in Compute.
		if e.CategoryID == nil {
			continue
		}
		if e.Happened(today, b.overdueIsActual) {
			d.Executed = append(d.Executed, e)
			if e.Kind == core.Income {
				d.ExecutedIncome = d.ExecutedIncome.Add(e.Amount)
			} else {
				d.ExecutedExpense = d.ExecutedExpense.Add(e.Amount)
			}
			continue
		}
		d.Pending = append(d.Pending, e)
		if e.Kind == core.Income {
			d.PendingIncome = d.PendingIncome.Add(e.Amount)
		} else {
			d.PendingExpense = d.PendingExpense.Add(e.Amount)
		}
	}

	if d.Budgets, err = b.budgets.Residuals(ctx, key, today); err != nil {
		return d, err
	}
	for _, r := range d.Budgets {
		d.PositiveResidual = d.PositiveResidual.Add(r.Amount().PositivePart())
	}

	summary, err := b.summaries.GetSummary(ctx, key)
	switch {
	case err == nil:
		d.Summary = &summary
		d.StartingBalance = summary.StartingBalance
	case errors.Is(err, core.ErrNotFound):
		if d.StartingBalance, err = b.openingFor(ctx, key); err != nil {
			return d, err
		}
	default:
		return d, err
	}

	d.CurrentBalance = d.StartingBalance.Add(d.ExecutedIncome).Sub(d.ExecutedExpense)
	if d.Summary != nil && !d.Summary.IsSeed {
		d.ProjectedEnding = d.Summary.EndingBalance
	} else {
		totals := core.PeriodTotals{
			Income:           d.ExecutedIncome.Add(d.PendingIncome),
			RawExpense:       d.ExecutedExpense.Add(d.PendingExpense),
			PositiveResidual: d.PositiveResidual,
		}
		d.ProjectedEnding = d.StartingBalance.Add(totals.Income).Sub(totals.AdjustedExpense())
	}
	return d, nil
}

// CategoryTotals returns the expense total of every category in the month,
// largest first. Uncategorized entries are left out.
func (b *SummaryBuilder) CategoryTotals(ctx context.Context, key core.PeriodKey) ([]core.CategoryAmount, error) {
	w := b.cal.ForKey(key)
	entries, err := b.entries.ListEntries(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]core.Money)
	for _, e := range entries {
		if e.Kind != core.Expense || e.CategoryID == nil {
			continue
		}
		totals[*e.CategoryID] = totals[*e.CategoryID].Add(e.Amount)
	}

	names := make(map[int64]string)
	if cats, err := b.categories.ListCategories(ctx); err == nil {
		for _, c := range cats {
			names[c.ID] = c.Name
		}
	}

	out := make([]core.CategoryAmount, 0, len(totals))
	for id, amount := range totals {
		out = append(out, core.CategoryAmount{CategoryID: id, Name: names[id], Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out, nil
}
