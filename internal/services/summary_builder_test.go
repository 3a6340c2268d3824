package services

import (
	"context"
	"testing"

	"bilancio/internal/core"
)

func TestRegenerateSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Casa")
	income := env.category(t, "Lavoro")
	today := core.NewDate(2025, 3, 5)

	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 27), Description: "Stipendio", Kind: core.Income, Amount: core.Cents(200000), CategoryID: &income})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 1), Description: "Affitto", Amount: core.Cents(60000), CategoryID: &cat})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 2), Description: "Contanti", Amount: core.Cents(9999)})
	if err := env.repo.SetOpeningBalance(ctx, core.Cents(100000)); err != nil {
		t.Fatalf("SetOpeningBalance: %v", err)
	}

	s, err := env.engine.Summaries.RegenerateSummary(ctx, key(2025, 3), today)
	if err != nil {
		t.Fatalf("RegenerateSummary: %v", err)
	}
	if s.StartingBalance.Cents != 100000 {
		t.Errorf("first period should start at the opening balance, got %d", s.StartingBalance.Cents)
	}
	if s.IncomeTotal.Cents != 200000 || s.RawExpenseTotal.Cents != 60000 {
		t.Errorf("totals = %+v, uncategorized entries must be excluded", s)
	}
	if s.EndingBalance.Cents != s.StartingBalance.Cents+s.IncomeTotal.Cents-s.ExpenseTotal.Cents {
		t.Errorf("ending balance invariant broken: %+v", s)
	}

	next, err := env.engine.Summaries.RegenerateSummary(ctx, key(2025, 4), today)
	if err != nil {
		t.Fatalf("RegenerateSummary: %v", err)
	}
	if next.StartingBalance.Cents != 0 {
		t.Errorf("later period should start at zero before chaining, got %d", next.StartingBalance.Cents)
	}

	// Existing rows keep their starting balance.
	next.StartingBalance = core.Cents(4242)
	next.Recompute()
	env.repo.UpsertSummary(ctx, next)
	again, _ := env.engine.Summaries.RegenerateSummary(ctx, key(2025, 4), today)
	if again.StartingBalance.Cents != 4242 {
		t.Errorf("starting balance = %d, want 4242", again.StartingBalance.Cents)
	}
}

func TestRegenerateSummary_SeedUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Casa")
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 10), Description: "Affitto", Amount: core.Cents(60000), CategoryID: &cat})
	env.repo.PlantSeed(ctx, key(2025, 2), core.Cents(25000))

	s, err := env.engine.Summaries.RegenerateSummary(ctx, key(2025, 2), core.NewDate(2025, 3, 1))
	if err != nil {
		t.Fatalf("RegenerateSummary: %v", err)
	}
	if !s.IsSeed || s.StartingBalance.Cents != 25000 || s.EndingBalance.Cents != 25000 || s.RawExpenseTotal.Cents != 0 {
		t.Fatalf("seed row changed: %+v", s)
	}
}

func TestDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Spesa")
	env.repo.SetCategoryBudget(ctx, cat, core.Cents(10000))
	env.repo.SetOpeningBalance(ctx, core.Cents(50000))

	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 28), Description: "Stipendio", Kind: core.Income, Amount: core.Cents(150000), CategoryID: &cat, EffectiveDate: datePtr(2025, 2, 28)})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 1), Description: "Coop", Amount: core.Cents(3000), CategoryID: &cat, EffectiveDate: datePtr(2025, 3, 1)})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 20), Description: "Esselunga", Amount: core.Cents(2000), CategoryID: &cat})
	today := core.NewDate(2025, 3, 5)

	d, err := env.engine.Summaries.Detail(ctx, key(2025, 3), today)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Executed) != 2 || len(d.Pending) != 1 {
		t.Fatalf("executed %d pending %d", len(d.Executed), len(d.Pending))
	}
	if d.Future {
		t.Errorf("current month must not be flagged as future")
	}
	if d.StartingBalance.Cents != 50000 {
		t.Errorf("starting = %d", d.StartingBalance.Cents)
	}
	if d.CurrentBalance.Cents != 50000+150000-3000 {
		t.Errorf("current = %d", d.CurrentBalance.Cents)
	}
	// 50000 + 150000 - (5000 raw + 5000 unspent budget)
	if d.ProjectedEnding.Cents != 190000 {
		t.Errorf("projected = %d, want 190000", d.ProjectedEnding.Cents)
	}
	if d.Label != "March 2025 - 27/02 - 26/03/2025" {
		t.Errorf("label = %q", d.Label)
	}

	future, _ := env.engine.Summaries.Detail(ctx, key(2025, 5), today)
	if !future.Future {
		t.Errorf("May should be flagged as future")
	}
}

func TestDetail_ExcludesUncategorized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat := env.category(t, "Casa")
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 10), Description: "Contanti", Amount: core.Cents(7000)})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 12), Description: "Bolletta", Amount: core.Cents(3000), CategoryID: &cat})
	today := core.NewDate(2025, 3, 5)

	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"without a summary row", func(t *testing.T) {}},
		{"with a seed row", func(t *testing.T) {
			if err := env.repo.PlantSeed(ctx, key(2025, 2), core.Cents(0)); err != nil {
				t.Fatalf("PlantSeed: %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			d, err := env.engine.Summaries.Detail(ctx, key(2025, 2), today)
			if err != nil {
				t.Fatalf("Detail: %v", err)
			}
			if len(d.Executed) != 1 || d.Executed[0].Description != "Bolletta" || len(d.Pending) != 0 {
				t.Fatalf("executed %+v pending %+v", d.Executed, d.Pending)
			}
			if d.ExecutedExpense.Cents != 3000 || d.CurrentBalance.Cents != -3000 || d.ProjectedEnding.Cents != -3000 {
				t.Fatalf("expense %d current %d projected %d", d.ExecutedExpense.Cents, d.CurrentBalance.Cents, d.ProjectedEnding.Cents)
			}
		})
	}

	s, err := env.engine.Summaries.Compute(ctx, key(2025, 2), today)
	if err != nil || s.RawExpense.Cents != 3000 {
		t.Fatalf("Compute raw expense = %d, %v", s.RawExpense.Cents, err)
	}
}

func TestCategoryTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	home := env.category(t, "Casa")
	food := env.category(t, "Spesa")
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 1), Description: "Affitto", Amount: core.Cents(60000), CategoryID: &home})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 2), Description: "Coop", Amount: core.Cents(3000), CategoryID: &food})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 3, 3), Description: "Lidl", Amount: core.Cents(2500), CategoryID: &food})

	got, err := env.engine.Summaries.CategoryTotals(ctx, key(2025, 3))
	if err != nil {
		t.Fatalf("CategoryTotals: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Casa" || got[1].Amount.Cents != 5500 {
		t.Fatalf("CategoryTotals = %+v", got)
	}
}

func TestChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := []core.PeriodKey{key(2025, 1), key(2025, 2), key(2025, 3), key(2025, 4)}
	for i, k := range keys {
		s := core.PeriodSummary{Year: k.Year, Month: k.Month, StartingBalance: core.Cents(int64(i) * 7),
			IncomeTotal: core.Cents(1000), ExpenseTotal: core.Cents(400), RawExpenseTotal: core.Cents(400)}
		s.Recompute()
		env.repo.UpsertSummary(ctx, s)
	}

	n, err := env.engine.Chainer.Chain(ctx, keys)
	if err != nil || n != 3 {
		t.Fatalf("Chain = %d, %v", n, err)
	}
	for i := 0; i+1 < len(keys); i++ {
		p, _ := env.repo.GetSummary(ctx, keys[i])
		q, _ := env.repo.GetSummary(ctx, keys[i+1])
		if q.StartingBalance != p.EndingBalance {
			t.Errorf("%s starting %d != %s ending %d", keys[i+1], q.StartingBalance.Cents, keys[i], p.EndingBalance.Cents)
		}
		if q.EndingBalance.Cents != q.StartingBalance.Cents+600 {
			t.Errorf("%s ending not recomputed", keys[i+1])
		}
	}
}

func TestChain_SkipsFailingPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := []core.PeriodKey{key(2025, 1), key(2025, 2), key(2025, 3)}
	for _, k := range keys {
		s := core.PeriodSummary{Year: k.Year, Month: k.Month, StartingBalance: core.Cents(100), IncomeTotal: core.Cents(50)}
		s.Recompute()
		env.repo.UpsertSummary(ctx, s)
	}
	env.store.failChainFor[key(2025, 2)] = true

	n, err := env.engine.Chainer.Chain(ctx, keys)
	if n != 1 || err == nil {
		t.Fatalf("Chain = %d, %v; want 1 pair and an error", n, err)
	}
	march, _ := env.repo.GetSummary(ctx, key(2025, 3))
	if march.StartingBalance.Cents != 150 {
		t.Fatalf("later pair should still be chained, starting = %d", march.StartingBalance.Cents)
	}
}
