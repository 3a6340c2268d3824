package services

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/core"
)

func TestPopulateHorizon_MonthlyScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recurring(t, core.RecurringDefinition{Description: "Palestra", Amount: core.Cents(5000), DayOfMonth: 15})

	n, err := env.engine.Projector.PopulateHorizon(ctx, HorizonRequest{Months: 3, BaseDate: core.NewDate(2025, 1, 10)})
	if err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}
	if n != 3 {
		t.Fatalf("created %d entries, want 3", n)
	}

	entries := env.entries(t)
	want := []string{"2025-01-15", "2025-02-15", "2025-03-15"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Date.String() != want[i] {
			t.Errorf("entry %d date = %s, want %s", i, e.Date, want[i])
		}
		w := env.engine.Calendar.Boundaries(e.Date)
		if !w.Contains(e.Date) || w.Start.Day() != 27 || w.End.Day() != 26 {
			t.Errorf("entry %s not inside a [27, 26] window", e.Date)
		}
		if e.PeriodID != w.ID() {
			t.Errorf("entry %s period id = %d, want %d", e.Date, e.PeriodID, w.ID())
		}
		if e.RecurringID == nil || *e.RecurringID != rec || e.EffectiveDate != nil || e.Modified {
			t.Errorf("unexpected projected entry %+v", e)
		}
	}
}

func TestPopulateHorizon_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.recurring(t, core.RecurringDefinition{Description: "Affitto", Amount: core.Cents(60000), DayOfMonth: 1})
	env.recurring(t, core.RecurringDefinition{Description: "Stipendio", Kind: core.Income, Amount: core.Cents(200000), DayOfMonth: 27})

	req := HorizonRequest{Months: 6, BaseDate: core.NewDate(2025, 1, 10)}
	first, err := env.engine.Projector.PopulateHorizon(ctx, req)
	if err != nil || first != 12 {
		t.Fatalf("first PopulateHorizon = %d, %v", first, err)
	}
	second, err := env.engine.Projector.PopulateHorizon(ctx, req)
	if err != nil {
		t.Fatalf("second PopulateHorizon: %v", err)
	}
	if second != 0 {
		t.Fatalf("second call created %d entries, want 0", second)
	}
}

func TestPopulateHorizon_ProtectsModifiedEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recurring(t, core.RecurringDefinition{Description: "Luce", Amount: core.Cents(8000), DayOfMonth: 15})
	req := HorizonRequest{Months: 3, BaseDate: core.NewDate(2025, 1, 10)}

	if _, err := env.engine.Projector.PopulateHorizon(ctx, req); err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}
	var feb core.LedgerEntry
	for _, e := range env.entries(t) {
		if e.Date.String() == "2025-02-15" {
			feb = e
		}
	}
	feb.Amount = core.Cents(9150)
	if err := env.repo.UpdateEntry(ctx, feb); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	n, err := env.engine.Projector.PopulateHorizon(ctx, req)
	if err != nil || n != 0 {
		t.Fatalf("PopulateHorizon after edit = %d, %v", n, err)
	}
	got, err := env.repo.GetEntry(ctx, feb.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !got.Modified || got.Amount.Cents != 9150 || *got.RecurringID != rec {
		t.Fatalf("modified entry was altered: %+v", got)
	}
	count := 0
	for _, e := range env.entries(t) {
		if e.Date.String() == "2025-02-15" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("found %d entries on the modified date, want 1", count)
	}
}

func TestPopulateHorizon_ManualEditWithSameDescriptionBlocks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.recurring(t, core.RecurringDefinition{Description: "Internet", Amount: core.Cents(2990), DayOfMonth: 15})
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 15), Description: "Internet", Amount: core.Cents(3500), Modified: true})

	n, err := env.engine.Projector.PopulateHorizon(ctx, HorizonRequest{Months: 3, BaseDate: core.NewDate(2025, 1, 10)})
	if err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}
	if n != 2 {
		t.Fatalf("created %d, want 2 (the February date is protected)", n)
	}
}

func TestPopulateHorizon_AnnualOverlap(t *testing.T) {
	tests := []struct {
		name        string
		monthly     core.RecurringDefinition
		annual      core.RecurringDefinition
		wantMonthly int
	}{
		{
			name:        "same category and kind",
			monthly:     core.RecurringDefinition{Description: "Rata auto", DayOfMonth: 15, SkipIfAnnualOverlap: true},
			annual:      core.RecurringDefinition{Description: "Bollo", DayOfMonth: 15, Cadence: core.Annual, DueMonth: 3},
			wantMonthly: 2,
		},
		{
			name:        "description substring",
			monthly:     core.RecurringDefinition{Description: "Stipendio", Kind: core.Income, DayOfMonth: 10, SkipIfAnnualOverlap: true},
			annual:      core.RecurringDefinition{Description: "STIPENDIO Marzo", Kind: core.Expense, DayOfMonth: 20, Cadence: core.Annual, DueMonth: 3},
			wantMonthly: 2,
		},
		{
			name:        "flag not set",
			monthly:     core.RecurringDefinition{Description: "Rata auto", DayOfMonth: 15},
			annual:      core.RecurringDefinition{Description: "Bollo", DayOfMonth: 15, Cadence: core.Annual, DueMonth: 3},
			wantMonthly: 3,
		},
		{
			name:        "annual due outside the horizon",
			monthly:     core.RecurringDefinition{Description: "Rata auto", DayOfMonth: 15, SkipIfAnnualOverlap: true},
			annual:      core.RecurringDefinition{Description: "Bollo", DayOfMonth: 15, Cadence: core.Annual, DueMonth: 9},
			wantMonthly: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			cat := env.category(t, "Auto")
			other := env.category(t, "Lavoro")
			tt.monthly.Amount, tt.annual.Amount = core.Cents(10000), core.Cents(30000)
			if tt.name == "description substring" {
				tt.monthly.CategoryID, tt.annual.CategoryID = &other, &cat
			} else {
				tt.monthly.CategoryID, tt.annual.CategoryID = &cat, &cat
			}
			monthly := env.recurring(t, tt.monthly)
			annual := env.recurring(t, tt.annual)

			_, err := env.engine.Projector.PopulateHorizon(context.Background(), HorizonRequest{Months: 3, BaseDate: core.NewDate(2025, 1, 10)})
			if err != nil {
				t.Fatalf("PopulateHorizon: %v", err)
			}

			gotMonthly, gotAnnual := 0, 0
			for _, e := range env.entries(t) {
				switch *e.RecurringID {
				case monthly:
					gotMonthly++
				case annual:
					gotAnnual++
				}
			}
			if gotMonthly != tt.wantMonthly {
				t.Errorf("monthly entries = %d, want %d", gotMonthly, tt.wantMonthly)
			}
			wantAnnual := 0
			if tt.annual.DueMonth == 3 {
				wantAnnual = 1
			}
			if gotAnnual != wantAnnual {
				t.Errorf("annual entries = %d, want %d", gotAnnual, wantAnnual)
			}
		})
	}
}

func TestPopulateHorizon_FutureOnlyAndMarkModified(t *testing.T) {
	env := newTestEnv(t)
	env.recurring(t, core.RecurringDefinition{Description: "Mutuo", Amount: core.Cents(70000), DayOfMonth: 15})

	n, err := env.engine.Projector.PopulateHorizon(context.Background(), HorizonRequest{
		Months:       3,
		BaseDate:     core.NewDate(2025, 1, 10),
		Today:        core.NewDate(2025, 2, 15),
		FutureOnly:   true,
		MarkModified: true,
	})
	if err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}
	if n != 1 {
		t.Fatalf("created %d, want 1 (only strictly after today)", n)
	}
	e := env.entries(t)[0]
	if e.Date.String() != "2025-03-15" || !e.Modified {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestPopulateHorizon_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []HorizonRequest{
		{Months: 0, BaseDate: core.NewDate(2025, 1, 1)},
		{Months: 7, BaseDate: core.NewDate(2025, 1, 1)},
		{Months: 3},
	}
	for _, req := range tests {
		if _, err := env.engine.Projector.PopulateHorizon(context.Background(), req); !errors.Is(err, core.ErrValidation) {
			t.Errorf("PopulateHorizon(%+v) error = %v, want validation", req, err)
		}
	}
}

func TestRepropagate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.recurring(t, core.RecurringDefinition{Description: "Telefono", Amount: core.Cents(1000), DayOfMonth: 15})

	if _, err := env.engine.Projector.PopulateHorizon(ctx, HorizonRequest{Months: 4, BaseDate: core.NewDate(2025, 1, 10)}); err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}
	for _, e := range env.entries(t) {
		switch e.Date.String() {
		case "2025-01-15":
			if err := env.repo.ConfirmEntry(ctx, e.ID, e.Date); err != nil {
				t.Fatalf("ConfirmEntry: %v", err)
			}
		case "2025-03-15":
			e.Description = "Telefono (sconto)"
			if err := env.repo.UpdateEntry(ctx, e); err != nil {
				t.Fatalf("UpdateEntry: %v", err)
			}
		}
	}

	def, _ := env.repo.GetRecurring(ctx, rec)
	def.Amount = core.Cents(1500)
	if err := env.repo.UpdateRecurring(ctx, def); err != nil {
		t.Fatalf("UpdateRecurring: %v", err)
	}

	deleted, created, err := env.engine.Projector.Repropagate(ctx, rec, 4, core.NewDate(2025, 1, 20))
	if err != nil {
		t.Fatalf("Repropagate: %v", err)
	}
	if deleted != 2 || created != 2 {
		t.Fatalf("Repropagate = deleted %d, created %d; want 2, 2", deleted, created)
	}

	want := map[string]int64{
		"2025-01-15": 1000, // executed history
		"2025-02-15": 1500,
		"2025-03-15": 1000, // edited by hand
		"2025-04-15": 1500,
	}
	entries := env.entries(t)
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if e.Amount.Cents != want[e.Date.String()] {
			t.Errorf("%s amount = %d, want %d", e.Date, e.Amount.Cents, want[e.Date.String()])
		}
	}
}
