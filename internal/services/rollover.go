package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// RolloverRequest triggers one rollover.
type RolloverRequest struct {
	Force    bool      // ignore the marker and restart from the first step
	Months   int       // months to extend the projection by, 0 for the default
	BaseDate core.Date // reference date; selects the current financial month
}

// StepError records a failed rollover step.
type StepError struct {
	Step  int    `json:"step"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Diagnostics is the outcome of a rollover trigger.
type Diagnostics struct {
	RunID         string             `json:"run_id,omitempty"`
	Label         string             `json:"label"`
	State         core.RolloverState `json:"state"`
	Resumed       bool               `json:"resumed"`
	Skipped       bool               `json:"skipped"`
	ArchivedCount int                `json:"archived_count"`
	CreatedCount  int                `json:"created_count"`
	RebuiltCount  int                `json:"rebuilt_count"`
	ChainedCount  int                `json:"chained_count"`
	NewSeed       *core.Money        `json:"-"`
	StepErrors    []StepError        `json:"step_errors,omitempty"`
}

// OK reports whether every executed step succeeded.
func (d Diagnostics) OK() bool {
	return len(d.StepErrors) == 0
}

// RolloverOptions tunes the orchestrator.
type RolloverOptions struct {
	Horizon      int // summaries rebuilt after the rollover
	ExtendMonths int // default projection extension
}

type rolloverStore interface {
	EntryStore
	SummaryStore
	ArchiveStore
	RolloverStore
}

// RolloverOrchestrator closes the previous financial month once per period:
// it persists budget residuals, computes the new seed, archives old entries,
// extends the projection and rebuilds the chained summaries. Progress is
// persisted after every step so a failed run resumes where it stopped.
type RolloverOrchestrator struct {
	store     rolloverStore
	projector *Projector
	budgets   *BudgetReconciler
	summaries *SummaryBuilder
	chainer   *BalanceChainer
	cal       core.Calendar
	opts      RolloverOptions
	notifier  Notifier
	newRunID  func() string
}

func NewRolloverOrchestrator(store Store, projector *Projector, budgets *BudgetReconciler, summaries *SummaryBuilder,
	chainer *BalanceChainer, cal core.Calendar, opts RolloverOptions, notifier Notifier) *RolloverOrchestrator {
	if opts.Horizon < 1 || opts.Horizon > MaxHorizonMonths {
		opts.Horizon = MaxHorizonMonths
	}
	if opts.ExtendMonths < 1 {
		opts.ExtendMonths = 1
	}
	return &RolloverOrchestrator{
		store:     store,
		projector: projector,
		budgets:   budgets,
		summaries: summaries,
		chainer:   chainer,
		cal:       cal,
		opts:      opts,
		notifier:  notifier,
		newRunID:  uuid.NewString,
	}
}

// rolloverRun carries the state shared by the steps of one run.
type rolloverRun struct {
	core.RolloverRun
	today   core.Date
	current core.Window
	prev    core.Window
	months  int
	diag    *Diagnostics
}

// rolloverStep is one step of the run. A step runs only after every step
// named in after has completed, so the inputs of a step are never consumed
// before it succeeds.
type rolloverStep struct {
	name  string
	state core.RolloverState
	after []string
	run   func(ctx context.Context, r *rolloverRun) error
}

func (o *RolloverOrchestrator) steps() []rolloverStep {
	return []rolloverStep{
		{"persist_residuals", core.RolloverArchiving, nil, o.persistResiduals},
		{"compute_seed", core.RolloverArchiving, []string{"persist_residuals"}, o.computeSeed},
		{"archive", core.RolloverArchiving, []string{"persist_residuals", "compute_seed"}, o.archive},
		{"project", core.RolloverProjecting, nil, o.project},
		{"plant_seed", core.RolloverSummarizing, []string{"compute_seed"}, o.plantSeed},
		{"rebuild_summaries", core.RolloverSummarizing, []string{"project", "plant_seed"}, o.rebuild},
		{"chain_balances", core.RolloverSummarizing, []string{"rebuild_summaries"}, o.chain},
	}
}

// pendingDependency returns the first step that step waits for and that has
// not completed in run, or "" when step may run.
func pendingDependency(steps []rolloverStep, step rolloverStep, run *rolloverRun) string {
	for _, dep := range step.after {
		for i, s := range steps {
			if s.name == dep && !run.StepDone(i) {
				return dep
			}
		}
	}
	return ""
}

// Due reports whether the financial month containing today still needs its rollover.
func (o *RolloverOrchestrator) Due(ctx context.Context, today core.Date) (bool, error) {
	marker, err := o.store.GetMarker(ctx)
	if err != nil {
		return false, err
	}
	return marker != o.cal.Label(today), nil
}

// MaybeRun runs the rollover when today's period has not been rolled over yet.
func (o *RolloverOrchestrator) MaybeRun(ctx context.Context, today core.Date) (Diagnostics, error) {
	return o.Run(ctx, RolloverRequest{BaseDate: today})
}

// Run executes the rollover for the financial month containing req.BaseDate.
// Step failures are recorded in the diagnostics and do not stop independent
// later steps; steps that depend on a failed one are reported as blocked.
// A resumed run only executes the steps that have not completed.
// The returned error is reserved for invalid requests and for failures that
// prevent the run from starting.
func (o *RolloverOrchestrator) Run(ctx context.Context, req RolloverRequest) (Diagnostics, error) {
	if req.BaseDate.IsZero() {
		return Diagnostics{}, core.Validation("base date is required")
	}
	if req.Months < 0 || req.Months > MaxHorizonMonths {
		return Diagnostics{}, core.Validation("months must be between 0 and %d, got %d", MaxHorizonMonths, req.Months)
	}
	months := req.Months
	if months == 0 {
		months = o.opts.ExtendMonths
	}

	current := o.cal.Boundaries(req.BaseDate)
	label := current.Label()
	diag := Diagnostics{Label: label, State: core.RolloverIdle}

	marker, err := o.store.GetMarker(ctx)
	if err != nil {
		return diag, err
	}
	if !req.Force && marker == label {
		diag.Skipped = true
		diag.State = core.RolloverDone
		return diag, nil
	}

	run := &rolloverRun{
		RolloverRun: core.RolloverRun{Label: label, State: core.RolloverIdle},
		today:       req.BaseDate,
		current:     current,
		prev:        o.cal.Shift(current, -1),
		months:      months,
		diag:        &diag,
	}

	if !req.Force {
		saved, err := o.store.GetRolloverRun(ctx, label)
		switch {
		case err == nil:
			run.RolloverRun = saved
			diag.Resumed = true
		case !errors.Is(err, core.ErrNotFound):
			return diag, err
		}
	}
	if !diag.Resumed {
		run.RunID = o.newRunID()
		run.Cursor = 0
		run.Completed = 0
		run.NewSeed = nil
	}
	diag.RunID = run.RunID

	slog.InfoContext(ctx, "Rollover started",
		"run_id", run.RunID,
		"label", label,
		"cursor", run.Cursor,
		"resumed", diag.Resumed,
		"force", req.Force)

	steps := o.steps()
	for i, step := range steps {
		if run.StepDone(i) {
			continue
		}
		run.State = step.state
		if dep := pendingDependency(steps, step, run); dep != "" {
			slog.WarnContext(ctx, "Rollover step blocked",
				"run_id", run.RunID,
				"step", step.name,
				"waiting_for", dep)
			diag.StepErrors = append(diag.StepErrors, StepError{Step: i + 1, Name: step.name, Error: fmt.Sprintf("blocked until %s completes", dep)})
			continue
		}
		if err := step.run(ctx, run); err != nil {
			slog.ErrorContext(ctx, "Rollover step failed",
				"run_id", run.RunID,
				"step", step.name,
				"error", err)
			diag.StepErrors = append(diag.StepErrors, StepError{Step: i + 1, Name: step.name, Error: err.Error()})
		} else {
			run.MarkStep(i)
		}
		run.Cursor = run.FirstPending(len(steps))
		o.saveRun(ctx, run)
	}

	diag.NewSeed = run.NewSeed
	if len(diag.StepErrors) > 0 {
		run.State = core.RolloverError
		diag.State = run.State
		o.saveRun(ctx, run)
		return diag, nil
	}

	// Step 0 marks a failure outside the step sequence.
	if err := o.store.SetMarker(ctx, label); err != nil {
		diag.StepErrors = append(diag.StepErrors, StepError{Step: 0, Name: "advance_marker", Error: err.Error()})
		run.State = core.RolloverError
		diag.State = run.State
		o.saveRun(ctx, run)
		return diag, nil
	}

	run.State = core.RolloverDone
	diag.State = run.State
	o.saveRun(ctx, run)

	slog.InfoContext(ctx, "Rollover completed",
		"run_id", run.RunID,
		"label", label,
		"archived", diag.ArchivedCount,
		"created", diag.CreatedCount,
		"rebuilt", diag.RebuiltCount,
		"chained", diag.ChainedCount)

	if o.notifier != nil {
		if err := o.notifier.RolloverCompleted(ctx, diag); err != nil {
			slog.WarnContext(ctx, "Failed to publish rollover event", "run_id", run.RunID, "error", err)
		}
	}
	return diag, nil
}

func (o *RolloverOrchestrator) saveRun(ctx context.Context, run *rolloverRun) {
	if err := o.store.SaveRolloverRun(ctx, run.RolloverRun); err != nil {
		slog.ErrorContext(ctx, "Failed to persist rollover cursor",
			"run_id", run.RunID,
			"cursor", run.Cursor,
			"error", err)
	}
}

func (o *RolloverOrchestrator) persistResiduals(ctx context.Context, r *rolloverRun) error {
	_, err := o.budgets.PersistResiduals(ctx, r.prev.Key(), r.today)
	return err
}

// computeSeed sets the new seed to the previous period's ending balance plus
// its unspent budgets. A seed already computed for this run is kept.
func (o *RolloverOrchestrator) computeSeed(ctx context.Context, r *rolloverRun) error {
	if r.NewSeed != nil {
		return nil
	}
	prevKey := r.prev.Key()
	summary, err := o.store.GetSummary(ctx, prevKey)
	if errors.Is(err, core.ErrNotFound) {
		summary, err = o.summaries.RegenerateSummary(ctx, prevKey, r.today)
	}
	if err != nil {
		return err
	}
	positive, err := o.budgets.TotalPositiveResidual(ctx, prevKey, r.today)
	if err != nil {
		return err
	}
	seed := summary.EndingBalance.Add(positive)
	r.NewSeed = &seed
	return nil
}

func (o *RolloverOrchestrator) archive(ctx context.Context, r *rolloverRun) error {
	n, err := o.store.ArchiveBefore(ctx, r.current.Start)
	r.diag.ArchivedCount = n
	return err
}

// project extends the projection by the next uncovered months without going
// past the last month of the horizon.
func (o *RolloverOrchestrator) project(ctx context.Context, r *rolloverRun) error {
	last, ok, err := o.store.LastProjectedDate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		n, err := o.projector.PopulateFrom(ctx, r.current, o.opts.Horizon, r.today)
		r.diag.CreatedCount = n
		return err
	}

	next := o.cal.Shift(o.cal.Boundaries(last), 1)
	if next.Key().Before(r.current.Key()) {
		next = r.current
	}
	limit := r.current.Key().Add(o.opts.Horizon - 1)
	months := monthsBetween(next.Key(), limit) + 1
	if months > r.months {
		months = r.months
	}
	if months < 1 {
		slog.InfoContext(ctx, "Projection already covers the horizon", "last_projected", last.String())
		return nil
	}
	n, err := o.projector.PopulateFrom(ctx, next, months, r.today)
	r.diag.CreatedCount = n
	return err
}

func (o *RolloverOrchestrator) plantSeed(ctx context.Context, r *rolloverRun) error {
	if r.NewSeed == nil {
		return fmt.Errorf("seed for %s was never computed", r.prev.Key())
	}
	return o.store.PlantSeed(ctx, r.prev.Key(), *r.NewSeed)
}

func (o *RolloverOrchestrator) rebuild(ctx context.Context, r *rolloverRun) error {
	var errs []error
	r.diag.RebuiltCount = 0
	for i := 0; i < o.opts.Horizon; i++ {
		key := r.current.Key().Add(i)
		if _, err := o.summaries.RegenerateSummary(ctx, key, r.today); err != nil {
			errs = append(errs, fmt.Errorf("regenerate %s: %w", key, err))
			continue
		}
		r.diag.RebuiltCount++
	}
	return errors.Join(errs...)
}

func (o *RolloverOrchestrator) chain(ctx context.Context, r *rolloverRun) error {
	keys := make([]core.PeriodKey, 0, o.opts.Horizon+1)
	keys = append(keys, r.prev.Key())
	for i := 0; i < o.opts.Horizon; i++ {
		keys = append(keys, r.current.Key().Add(i))
	}
	n, err := o.chainer.Chain(ctx, keys)
	r.diag.ChainedCount = n
	return err
}

func monthsBetween(from, to core.PeriodKey) int {
	return (to.Year*12 + to.Month) - (from.Year*12 + from.Month)
}
