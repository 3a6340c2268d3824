package services

import "bilancio/internal/core"

// Options configures the engine.
type Options struct {
	Calendar        core.Calendar
	Horizon         int
	ExtendMonths    int
	OverdueIsActual bool
	BackupDir       string
}

// Engine bundles the services built on one store.
type Engine struct {
	Calendar  core.Calendar
	Horizon   int
	Projector *Projector
	Budgets   *BudgetReconciler
	Summaries *SummaryBuilder
	Chainer   *BalanceChainer
	Rollover  *RolloverOrchestrator
	Reset     *ResetService
}

func NewEngine(store Store, opts Options, notifier Notifier) *Engine {
	if opts.Calendar.StartDay == 0 {
		opts.Calendar = core.DefaultCalendar()
	}
	if opts.Horizon < 1 || opts.Horizon > MaxHorizonMonths {
		opts.Horizon = MaxHorizonMonths
	}

	projector := NewProjector(store, store, opts.Calendar)
	budgets := NewBudgetReconciler(store, opts.Calendar, opts.OverdueIsActual)
	summaries := NewSummaryBuilder(store, budgets, opts.Calendar, opts.OverdueIsActual)
	chainer := NewBalanceChainer(store)

	return &Engine{
		Calendar:  opts.Calendar,
		Horizon:   opts.Horizon,
		Projector: projector,
		Budgets:   budgets,
		Summaries: summaries,
		Chainer:   chainer,
		Rollover: NewRolloverOrchestrator(store, projector, budgets, summaries, chainer, opts.Calendar,
			RolloverOptions{Horizon: opts.Horizon, ExtendMonths: opts.ExtendMonths}, notifier),
		Reset: NewResetService(store, projector, summaries, chainer, opts.Calendar, opts.BackupDir, notifier),
	}
}
