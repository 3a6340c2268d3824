package services

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/core"
)

// seedScenario prepares February 2025 with an ending balance of 200.00 and an
// unspent budget of 50.00.
func seedScenario(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	cat := env.category(t, "Spesa")
	if err := env.repo.SetCategoryBudget(ctx, cat, core.Cents(10000)); err != nil {
		t.Fatalf("SetCategoryBudget: %v", err)
	}
	env.entry(t, core.LedgerEntry{Date: core.NewDate(2025, 2, 10), Description: "Coop", Amount: core.Cents(5000), CategoryID: &cat, EffectiveDate: datePtr(2025, 2, 10)})
	feb := core.PeriodSummary{Year: 2025, Month: 2, StartingBalance: core.Cents(20000)}
	feb.Recompute()
	if err := env.repo.UpsertSummary(ctx, feb); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
}

func TestRollover_SeedScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)
	today := core.NewDate(2025, 3, 5)

	d, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.OK() || d.State != core.RolloverDone {
		t.Fatalf("rollover failed: %+v", d)
	}
	if d.NewSeed == nil || d.NewSeed.Cents != 25000 {
		t.Fatalf("new seed = %v, want 250.00", d.NewSeed)
	}
	if d.ArchivedCount != 1 || d.RebuiltCount != 6 || d.ChainedCount != 6 {
		t.Errorf("diagnostics = %+v", d)
	}
	if d.RunID == "" || d.Label != "March 2025 - 27/02 - 26/03/2025" {
		t.Errorf("run id %q label %q", d.RunID, d.Label)
	}

	summaries, err := env.repo.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	seeds := 0
	for _, s := range summaries {
		if s.IsSeed {
			seeds++
			if s.Key() != key(2025, 2) || s.StartingBalance.Cents != 25000 || s.EndingBalance.Cents != 25000 {
				t.Errorf("seed row = %+v", s)
			}
		}
	}
	if seeds != 1 {
		t.Fatalf("found %d seed rows, want 1", seeds)
	}
	if len(summaries) != 7 {
		t.Fatalf("found %d summaries, want seed plus 6 rebuilt", len(summaries))
	}
	for i := 1; i < len(summaries); i++ {
		if summaries[i].StartingBalance != summaries[i-1].EndingBalance {
			t.Errorf("%s starting %d != previous ending %d", summaries[i].Key(), summaries[i].StartingBalance.Cents, summaries[i-1].EndingBalance.Cents)
		}
	}

	archived, _ := env.repo.ListArchived(ctx, 202502)
	if len(archived) != 1 || archived[0].Description != "Coop" || archived[0].CategoryName != "Spesa" {
		t.Fatalf("archive = %+v", archived)
	}
	if marker, _ := env.repo.GetMarker(ctx); marker != d.Label {
		t.Fatalf("marker = %q, want %q", marker, d.Label)
	}
	if len(env.events.rollovers) != 1 {
		t.Fatalf("expected one rollover event, got %d", len(env.events.rollovers))
	}
}

func TestRollover_OncePerPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)

	first, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: core.NewDate(2025, 3, 1)})
	if err != nil || first.Skipped {
		t.Fatalf("first run = %+v, %v", first, err)
	}
	due, err := env.engine.Rollover.Due(ctx, core.NewDate(2025, 3, 20))
	if err != nil || due {
		t.Fatalf("Due = %v, %v; want false within the same period", due, err)
	}

	second, err := env.engine.Rollover.MaybeRun(ctx, core.NewDate(2025, 3, 20))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Skipped || second.ArchivedCount != 0 {
		t.Fatalf("second run should be a no-op: %+v", second)
	}
	if len(env.events.rollovers) != 1 {
		t.Fatalf("heavy sequence ran %d times", len(env.events.rollovers))
	}

	forced, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: core.NewDate(2025, 3, 20), Force: true})
	if err != nil || forced.Skipped || forced.Resumed || forced.RunID == first.RunID {
		t.Fatalf("forced run = %+v, %v", forced, err)
	}

	due, _ = env.engine.Rollover.Due(ctx, core.NewDate(2025, 3, 27))
	if !due {
		t.Fatalf("the next financial month should be due")
	}
}

func TestRollover_ResumesFromFailedStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)
	today := core.NewDate(2025, 3, 5)

	env.store.failArchive = true
	failed, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed.State != core.RolloverError || len(failed.StepErrors) != 1 || failed.StepErrors[0].Name != "archive" {
		t.Fatalf("expected only the archive step to fail: %+v", failed)
	}
	if failed.RebuiltCount != 6 {
		t.Errorf("later steps should still run, rebuilt = %d", failed.RebuiltCount)
	}
	if marker, _ := env.repo.GetMarker(ctx); marker != "" {
		t.Fatalf("marker advanced after a failed step: %q", marker)
	}
	run, err := env.repo.GetRolloverRun(ctx, failed.Label)
	if err != nil || run.Cursor != 2 || run.State != core.RolloverError {
		t.Fatalf("persisted run = %+v, %v", run, err)
	}
	if len(env.events.rollovers) != 0 {
		t.Fatalf("failed run must not be announced")
	}

	env.store.failArchive = false
	resumed, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resumed.Resumed || resumed.RunID != failed.RunID || resumed.State != core.RolloverDone {
		t.Fatalf("resumed run = %+v", resumed)
	}
	if resumed.ArchivedCount != 1 || resumed.NewSeed == nil || resumed.NewSeed.Cents != 25000 {
		t.Fatalf("resumed diagnostics = %+v", resumed)
	}
	if marker, _ := env.repo.GetMarker(ctx); marker != resumed.Label {
		t.Fatalf("marker = %q", marker)
	}
	seed, _ := env.repo.GetSummary(ctx, key(2025, 2))
	if !seed.IsSeed || seed.EndingBalance.Cents != 25000 {
		t.Fatalf("seed row = %+v", seed)
	}
}

func TestRollover_SeedNeverComputed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)
	today := core.NewDate(2025, 3, 5)
	env.store.failBudgets = true

	d, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	names := map[string]bool{}
	for _, se := range d.StepErrors {
		names[se.Name] = true
	}
	for _, want := range []string{"persist_residuals", "compute_seed", "archive", "plant_seed", "rebuild_summaries", "chain_balances"} {
		if !names[want] {
			t.Errorf("expected step %s to fail or be blocked, got %+v", want, d.StepErrors)
		}
	}
	if names["project"] {
		t.Errorf("project does not depend on the seed: %+v", d.StepErrors)
	}
	if d.ArchivedCount != 0 {
		t.Errorf("archive must wait for the residuals and the seed, archived %d", d.ArchivedCount)
	}
	run, _ := env.repo.GetRolloverRun(ctx, d.Label)
	if run.Cursor != 0 || run.NewSeed != nil {
		t.Fatalf("run should resume from the first step: %+v", run)
	}

	env.store.failBudgets = false
	resumed, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil || resumed.State != core.RolloverDone || !resumed.Resumed {
		t.Fatalf("resumed run = %+v, %v", resumed, err)
	}
	if resumed.NewSeed == nil || resumed.NewSeed.Cents != 25000 || resumed.ArchivedCount != 1 {
		t.Fatalf("resumed diagnostics = %+v, seed %v", resumed, resumed.NewSeed)
	}
	seed, _ := env.repo.GetSummary(ctx, key(2025, 2))
	if !seed.IsSeed || seed.StartingBalance.Cents != 25000 || seed.EndingBalance.Cents != 25000 {
		t.Fatalf("seed row = %+v", seed)
	}
	march, _ := env.repo.GetSummary(ctx, key(2025, 3))
	if march.StartingBalance.Cents != 25000 {
		t.Fatalf("march starting = %d, want the seed", march.StartingBalance.Cents)
	}
}

func TestRollover_ResumeAfterResidualFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)
	today := core.NewDate(2025, 3, 5)
	env.store.failSave = true

	failed, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if failed.State != core.RolloverError || failed.ArchivedCount != 0 {
		t.Fatalf("first run = %+v", failed)
	}
	entries := env.entries(t)
	if len(entries) != 1 || entries[0].Description != "Coop" {
		t.Fatalf("previous period entries must survive a failed residual step: %+v", entries)
	}

	env.store.failSave = false
	resumed, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil || resumed.State != core.RolloverDone {
		t.Fatalf("resumed run = %+v, %v", resumed, err)
	}
	if resumed.NewSeed == nil || resumed.NewSeed.Cents != 25000 {
		t.Fatalf("new seed = %v, want 250.00", resumed.NewSeed)
	}
	if resumed.RebuiltCount != 6 || resumed.ArchivedCount != 1 || resumed.ChainedCount != 6 {
		t.Errorf("blocked steps should run on resume: %+v", resumed)
	}
	seed, _ := env.repo.GetSummary(ctx, key(2025, 2))
	if seed.EndingBalance.Cents != 25000 {
		t.Fatalf("seed row ending = %d, want 25000", seed.EndingBalance.Cents)
	}
	stored, _ := env.repo.ListMonthlyBudgets(ctx, key(2025, 2))
	if len(stored) != 1 || stored[0].Residual.Cents != 5000 {
		t.Fatalf("persisted residuals = %+v, want 50.00", stored)
	}
	run, _ := env.repo.GetRolloverRun(ctx, resumed.Label)
	if run.Cursor != 7 || run.FirstPending(7) != 7 {
		t.Fatalf("run = %+v", run)
	}
}

func TestRollover_MarkerFailureIsOutsideTheSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedScenario(t, env)
	today := core.NewDate(2025, 3, 5)
	env.store.failMarker = true

	d, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.State != core.RolloverError || len(d.StepErrors) != 1 {
		t.Fatalf("diagnostics = %+v", d)
	}
	if se := d.StepErrors[0]; se.Step != 0 || se.Name != "advance_marker" {
		t.Fatalf("step error = %+v", se)
	}
	if len(env.events.rollovers) != 0 {
		t.Fatalf("failed run must not be announced")
	}

	env.store.failMarker = false
	again, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: today})
	if err != nil || again.State != core.RolloverDone || again.NewSeed == nil || again.NewSeed.Cents != 25000 {
		t.Fatalf("retry = %+v, %v", again, err)
	}
	if marker, _ := env.repo.GetMarker(ctx); marker != again.Label {
		t.Fatalf("marker = %q", marker)
	}
	if len(env.events.rollovers) != 1 {
		t.Fatalf("expected one rollover event, got %d", len(env.events.rollovers))
	}
}

func TestRollover_ExtendsProjectionByOneMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.recurring(t, core.RecurringDefinition{Description: "Palestra", Amount: core.Cents(4000), DayOfMonth: 15})
	if _, err := env.engine.Projector.PopulateHorizon(ctx, HorizonRequest{Months: 6, BaseDate: core.NewDate(2025, 2, 5)}); err != nil {
		t.Fatalf("PopulateHorizon: %v", err)
	}

	d, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: core.NewDate(2025, 3, 5)})
	if err != nil || !d.OK() {
		t.Fatalf("Run = %+v, %v", d, err)
	}
	if d.CreatedCount != 1 || d.ArchivedCount != 1 {
		t.Fatalf("created %d archived %d, want 1 and 1", d.CreatedCount, d.ArchivedCount)
	}
	last, _, _ := env.repo.LastProjectedDate(ctx)
	if last.String() != "2025-08-15" {
		t.Fatalf("last projected = %s, want 2025-08-15", last)
	}

	again, err := env.engine.Rollover.Run(ctx, RolloverRequest{BaseDate: core.NewDate(2025, 3, 5), Force: true, Months: 3})
	if err != nil || again.CreatedCount != 0 {
		t.Fatalf("projection must not go past the horizon: %+v, %v", again, err)
	}
}

func TestRollover_EmptyLedgerProjectsFullHorizon(t *testing.T) {
	env := newTestEnv(t)
	env.recurring(t, core.RecurringDefinition{Description: "Affitto", Amount: core.Cents(60000), DayOfMonth: 1})

	d, err := env.engine.Rollover.Run(context.Background(), RolloverRequest{BaseDate: core.NewDate(2025, 3, 5)})
	if err != nil || !d.OK() {
		t.Fatalf("Run = %+v, %v", d, err)
	}
	if d.CreatedCount != 6 {
		t.Fatalf("created %d, want 6", d.CreatedCount)
	}
}

func TestRollover_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []RolloverRequest{
		{},
		{BaseDate: core.NewDate(2025, 3, 5), Months: -1},
		{BaseDate: core.NewDate(2025, 3, 5), Months: 7},
	}
	for _, req := range tests {
		if _, err := env.engine.Rollover.Run(context.Background(), req); !errors.Is(err, core.ErrValidation) {
			t.Errorf("Run(%+v) error = %v, want validation", req, err)
		}
	}
}
