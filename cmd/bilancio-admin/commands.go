package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/subcommands"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// adminEnv is shared by every subcommand of one invocation.
type adminEnv struct {
	engine *services.Engine
	out    io.Writer
	now    func() time.Time
	err    error
}

func (e *adminEnv) commands() []subcommands.Command {
	return []subcommands.Command{
		&periodCmd{env: e},
		&populateCmd{env: e},
		&repropagateCmd{env: e},
		&regenerateCmd{env: e},
		&rolloverCmd{env: e},
		&resetCmd{env: e},
	}
}

func (e *adminEnv) today() core.Date {
	return core.DateOf(e.now())
}

// date parses a -date flag value, defaulting to today.
func (e *adminEnv) date(s string) (core.Date, error) {
	if s == "" {
		return e.today(), nil
	}
	return core.ParseDate(s)
}

// finish records err and maps it to an exit status.
func (e *adminEnv) finish(err error) subcommands.ExitStatus {
	e.err = err
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, core.ErrValidation):
		return subcommands.ExitUsageError
	default:
		return subcommands.ExitFailure
	}
}

func (e *adminEnv) print(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return e.finish(enc.Encode(v))
}

type periodCmd struct {
	env  *adminEnv
	date string
}

func (*periodCmd) Name() string     { return "period" }
func (*periodCmd) Synopsis() string { return "show the financial month containing a date" }
func (*periodCmd) Usage() string {
	return `period [-date YYYY-MM-DD]

  Prints the boundaries, label and period id of the financial month.
`
}

func (c *periodCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "reference date YYYY-MM-DD (default today)")
}

func (c *periodCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	w := c.env.engine.Calendar.Boundaries(d)
	return c.env.print(map[string]any{
		"date":      d,
		"period_id": w.ID(),
		"start":     w.Start,
		"end":       w.End,
		"days":      w.Days(),
		"label":     w.Label(),
	})
}

type populateCmd struct {
	env          *adminEnv
	date         string
	months       int
	futureOnly   bool
	markModified bool
}

func (*populateCmd) Name() string     { return "populate" }
func (*populateCmd) Synopsis() string { return "project recurring definitions over the horizon" }
func (*populateCmd) Usage() string {
	return `populate [-months N] [-date YYYY-MM-DD] [-future-only] [-mark-modified]

  Creates the missing ledger entries of every active recurring definition.
`
}

func (c *populateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "first month of the horizon, YYYY-MM-DD (default today)")
	f.IntVar(&c.months, "months", c.env.engine.Horizon, "months to project")
	f.BoolVar(&c.futureOnly, "future-only", false, "only create entries dated after today")
	f.BoolVar(&c.markModified, "mark-modified", false, "flag created entries as modified")
}

func (c *populateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	created, err := c.env.engine.Projector.PopulateHorizon(ctx, services.HorizonRequest{
		Months:       c.months,
		BaseDate:     d,
		Today:        c.env.today(),
		FutureOnly:   c.futureOnly,
		MarkModified: c.markModified,
	})
	if err != nil {
		return c.env.finish(err)
	}
	return c.env.print(map[string]int{"created": created, "months": c.months})
}

type repropagateCmd struct {
	env    *adminEnv
	date   string
	id     int64
	months int
}

func (*repropagateCmd) Name() string     { return "repropagate" }
func (*repropagateCmd) Synopsis() string { return "rebuild the future entries of one recurring definition" }
func (*repropagateCmd) Usage() string {
	return `repropagate -id N [-months N] [-date YYYY-MM-DD]

  Deletes the pending, unmodified entries of the definition and projects it again.
`
}

func (c *repropagateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "reference date YYYY-MM-DD (default today)")
	f.Int64Var(&c.id, "id", 0, "recurring definition id (required)")
	f.IntVar(&c.months, "months", c.env.engine.Horizon, "months to project")
}

func (c *repropagateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id <= 0 {
		return c.env.finish(core.Validation("-id is required"))
	}
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	deleted, created, err := c.env.engine.Projector.Repropagate(ctx, c.id, c.months, d)
	if err != nil {
		return c.env.finish(err)
	}
	return c.env.print(map[string]any{"recurring_id": c.id, "deleted": deleted, "created": created})
}

type regenerateCmd struct {
	env    *adminEnv
	date   string
	period string
}

func (*regenerateCmd) Name() string     { return "regenerate" }
func (*regenerateCmd) Synopsis() string { return "recompute the summary of one financial month" }
func (*regenerateCmd) Usage() string {
	return `regenerate -period YYYY-MM [-date YYYY-MM-DD]
`
}

func (c *regenerateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "reference date YYYY-MM-DD (default today)")
	f.StringVar(&c.period, "period", "", "financial month YYYY-MM (required)")
}

func (c *regenerateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var key core.PeriodKey
	if _, err := fmt.Sscanf(c.period, "%d-%d", &key.Year, &key.Month); err != nil || key.Month < 1 || key.Month > 12 {
		return c.env.finish(core.Validation("invalid -period %q, want YYYY-MM", c.period))
	}
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	s, err := c.env.engine.Summaries.RegenerateSummary(ctx, key, d)
	if err != nil {
		return c.env.finish(err)
	}
	return c.env.print(map[string]any{
		"period":            key.String(),
		"starting_balance":  s.StartingBalance.String(),
		"income_total":      s.IncomeTotal.String(),
		"raw_expense_total": s.RawExpenseTotal.String(),
		"expense_total":     s.ExpenseTotal.String(),
		"ending_balance":    s.EndingBalance.String(),
		"is_seed":           s.IsSeed,
	})
}

type rolloverCmd struct {
	env    *adminEnv
	date   string
	force  bool
	months int
}

func (*rolloverCmd) Name() string     { return "rollover" }
func (*rolloverCmd) Synopsis() string { return "close the previous financial month" }
func (*rolloverCmd) Usage() string {
	return `rollover [-force] [-months N] [-date YYYY-MM-DD]

  Runs or resumes the rollover of the month containing the date. The exit
  status is non-zero when a step failed; the diagnostics are printed anyway.
`
}

func (c *rolloverCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "reference date YYYY-MM-DD (default today)")
	f.BoolVar(&c.force, "force", false, "run even if this month already rolled over")
	f.IntVar(&c.months, "months", 0, "months to extend the projection (default ROLLOVER_EXTEND_MONTHS)")
}

// rolloverOutput exposes the seed as a decimal string.
type rolloverOutput struct {
	services.Diagnostics
	NewSeed string `json:"new_seed,omitempty"`
}

func (c *rolloverCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	diag, err := c.env.engine.Rollover.Run(ctx, services.RolloverRequest{Force: c.force, Months: c.months, BaseDate: d})
	if err != nil {
		return c.env.finish(err)
	}
	out := rolloverOutput{Diagnostics: diag}
	if diag.NewSeed != nil {
		out.NewSeed = diag.NewSeed.String()
	}
	if status := c.env.print(out); status != subcommands.ExitSuccess {
		return status
	}
	if !diag.OK() {
		return c.env.finish(fmt.Errorf("rollover %s finished with %d failed steps", diag.Label, len(diag.StepErrors)))
	}
	return subcommands.ExitSuccess
}

type resetCmd struct {
	env      *adminEnv
	date     string
	balance  string
	months   int
	fullWipe bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "back up and rebuild the horizon from an opening balance" }
func (*resetCmd) Usage() string {
	return `reset -balance AMOUNT [-months N] [-full-wipe] [-date YYYY-MM-DD]

  Writes a database backup first; the reset is aborted when the backup fails.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "first month of the horizon, YYYY-MM-DD (default today)")
	f.StringVar(&c.balance, "balance", "", "opening balance, e.g. 1250.00 (required)")
	f.IntVar(&c.months, "months", c.env.engine.Horizon, "months to rebuild")
	f.BoolVar(&c.fullWipe, "full-wipe", false, "delete every ledger entry before projecting")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.balance == "" {
		return c.env.finish(core.Validation("-balance is required"))
	}
	opening, err := core.ParseBalance(c.balance)
	if err != nil {
		return c.env.finish(err)
	}
	d, err := c.env.date(c.date)
	if err != nil {
		return c.env.finish(err)
	}
	res, err := c.env.engine.Reset.Reset(ctx, services.ResetRequest{
		OpeningBalance: opening,
		Months:         c.months,
		FullWipe:       c.fullWipe,
		BaseDate:       d,
		Today:          c.env.today(),
	})
	if err != nil {
		return c.env.finish(err)
	}
	return c.env.print(res)
}
