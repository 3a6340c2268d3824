package services

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/core"
)

func TestResidualScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Spesa")
	if err := env.repo.SetCategoryBudget(ctx, cat, core.Cents(10000)); err != nil {
		t.Fatalf("SetCategoryBudget: %v", err)
	}

	// March 2025 runs from 27 February to 26 March.
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 1), Description: "Coop", Amount: core.Cents(3000), CategoryID: &cat, EffectiveDate: datePtr(2025, 3, 1)})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 20), Description: "Esselunga", Amount: core.Cents(2000), CategoryID: &cat})
	today := core.NewDate(2025, 3, 5)

	res, err := env.engine.Budgets.ResidualFor(ctx, cat, key(2025, 3), today)
	if err != nil {
		t.Fatalf("ResidualFor: %v", err)
	}
	if res.Actual.Cents != 3000 || res.Planned.Cents != 2000 || res.Amount().Cents != 5000 {
		t.Fatalf("residual = %+v (amount %d), want actual 3000 planned 2000 residual 5000", res, res.Amount().Cents)
	}
	if res.CategoryName != "Spesa" {
		t.Errorf("category name = %q", res.CategoryName)
	}

	totals, err := env.engine.Summaries.Compute(ctx, key(2025, 3), today)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if totals.RawExpense.Cents != 5000 || totals.AdjustedExpense().Cents != totals.RawExpense.Cents+5000 {
		t.Fatalf("totals = %+v, adjusted %d", totals, totals.AdjustedExpense().Cents)
	}
}

func TestResidualFor_OverduePolicy(t *testing.T) {
	tests := []struct {
		name        string
		overdue     bool
		wantActual  int64
		wantPlanned int64
	}{
		{"overdue counts as actual", true, 4000, 0},
		{"overdue stays planned", false, 0, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			cat := env.category(t, "Bollette")
			env.repo.SetCategoryBudget(ctx, cat, core.Cents(5000))
			env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 2), Description: "Gas", Amount: core.Cents(4000), CategoryID: &cat})

			r := NewBudgetReconciler(env.store, env.engine.Calendar, tt.overdue)
			res, err := r.ResidualFor(ctx, cat, key(2025, 3), core.NewDate(2025, 3, 10))
			if err != nil {
				t.Fatalf("ResidualFor: %v", err)
			}
			if res.Actual.Cents != tt.wantActual || res.Planned.Cents != tt.wantPlanned {
				t.Errorf("actual %d planned %d, want %d %d", res.Actual.Cents, res.Planned.Cents, tt.wantActual, tt.wantPlanned)
			}
		})
	}
}

func TestResidualFor_LazyMonthlyBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Svago")
	env.repo.SetCategoryBudget(ctx, cat, core.Cents(8000))
	today := core.NewDate(2025, 3, 5)

	if _, err := env.engine.Budgets.ResidualFor(ctx, cat, key(2025, 3), today); err != nil {
		t.Fatalf("ResidualFor: %v", err)
	}
	mb, err := env.repo.GetMonthlyBudget(ctx, cat, key(2025, 3))
	if err != nil || mb.Allocation.Cents != 8000 {
		t.Fatalf("monthly budget should be created from the default: %+v, %v", mb, err)
	}

	// A later change of the default does not touch the existing month.
	env.repo.SetCategoryBudget(ctx, cat, core.Cents(9000))
	res, _ := env.engine.Budgets.ResidualFor(ctx, cat, key(2025, 3), today)
	if res.Allocation.Cents != 8000 {
		t.Fatalf("allocation = %d, want 8000", res.Allocation.Cents)
	}

	// Seed periods read the default without creating a monthly row.
	if err := env.repo.PlantSeed(ctx, key(2025, 2), core.Cents(100)); err != nil {
		t.Fatalf("PlantSeed: %v", err)
	}
	res, err = env.engine.Budgets.ResidualFor(ctx, cat, key(2025, 2), today)
	if err != nil || res.Allocation.Cents != 9000 {
		t.Fatalf("seed residual = %+v, %v", res, err)
	}
	if _, err := env.repo.GetMonthlyBudget(ctx, cat, key(2025, 2)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("no monthly row expected for a seed period, got %v", err)
	}
}

func TestResidualFor_NoBudget(t *testing.T) {
	env := newTestEnv(t)
	cat := env.category(t, "Varie")
	_, err := env.engine.Budgets.ResidualFor(context.Background(), cat, key(2025, 3), core.NewDate(2025, 3, 1))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPersistResidualsAndTotal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	food := env.category(t, "Spesa")
	fun := env.category(t, "Svago")
	env.repo.SetCategoryBudget(ctx, food, core.Cents(10000))
	env.repo.SetCategoryBudget(ctx, fun, core.Cents(2000))
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 1), Description: "Coop", Amount: core.Cents(4000), CategoryID: &food})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 2), Description: "Cinema", Amount: core.Cents(3500), CategoryID: &fun})
	today := core.NewDate(2025, 3, 10)

	residuals, err := env.engine.Budgets.PersistResiduals(ctx, key(2025, 3), today)
	if err != nil {
		t.Fatalf("PersistResiduals: %v", err)
	}
	if len(residuals) != 2 {
		t.Fatalf("got %d residuals, want 2", len(residuals))
	}

	stored, _ := env.repo.ListMonthlyBudgets(ctx, key(2025, 3))
	byCat := map[int64]int64{}
	for _, b := range stored {
		byCat[b.CategoryID] = b.Residual.Cents
	}
	if byCat[food] != 6000 || byCat[fun] != -1500 {
		t.Fatalf("stored residuals = %v", byCat)
	}

	total, err := env.engine.Budgets.TotalPositiveResidual(ctx, key(2025, 3), today)
	if err != nil || total.Cents != 6000 {
		t.Fatalf("TotalPositiveResidual = %d, %v; want 6000 (negative residuals are ignored)", total.Cents, err)
	}
}
