package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// MaxHorizonMonths bounds every projection and rebuild.
const MaxHorizonMonths = 6

// HorizonRequest describes one projection pass.
type HorizonRequest struct {
	Months       int
	BaseDate     core.Date // any day of the first financial month
	Today        core.Date // reference date, defaults to BaseDate
	FutureOnly   bool      // skip candidates on or before Today
	MarkModified bool      // create entries already flagged as edited
}

func (r *HorizonRequest) normalize() error {
	if r.BaseDate.IsZero() {
		return core.Validation("base date is required")
	}
	if r.Months < 1 || r.Months > MaxHorizonMonths {
		return core.Validation("months must be between 1 and %d, got %d", MaxHorizonMonths, r.Months)
	}
	if r.Today.IsZero() {
		r.Today = r.BaseDate
	}
	return nil
}

// Projector expands recurring definitions into scheduled ledger entries.
// It only ever creates rows.
type Projector struct {
	entries   EntryStore
	recurring RecurringStore
	cal       core.Calendar
}

func NewProjector(entries EntryStore, recurring RecurringStore, cal core.Calendar) *Projector {
	return &Projector{
		entries:   entries,
		recurring: recurring,
		cal:       cal,
	}
}

// PopulateHorizon projects every active definition over req.Months financial
// months starting with the one containing req.BaseDate. It returns the number
// of entries created.
func (p *Projector) PopulateHorizon(ctx context.Context, req HorizonRequest) (int, error) {
	if err := req.normalize(); err != nil {
		return 0, err
	}
	windows := p.cal.Horizon(req.BaseDate, req.Months)
	return p.populate(ctx, windows, nil, req)
}

// PopulateFrom projects months financial months starting at first.
func (p *Projector) PopulateFrom(ctx context.Context, first core.Window, months int, today core.Date) (int, error) {
	req := HorizonRequest{Months: months, BaseDate: first.Start, Today: today}
	if err := req.normalize(); err != nil {
		return 0, err
	}
	windows := make([]core.Window, 0, months)
	for i := 0; i < months; i++ {
		windows = append(windows, p.cal.Shift(first, i))
	}
	return p.populate(ctx, windows, nil, req)
}

// Repropagate applies an edited definition to its pending projected entries:
// unexecuted, unmodified entries dated after today are removed and projected
// again from the current definition. Past and edited entries stay as they are.
func (p *Projector) Repropagate(ctx context.Context, definitionID int64, months int, today core.Date) (deleted, created int, err error) {
	req := HorizonRequest{Months: months, BaseDate: today, Today: today, FutureOnly: true}
	if err := req.normalize(); err != nil {
		return 0, 0, err
	}
	def, err := p.recurring.GetRecurring(ctx, definitionID)
	if err != nil {
		return 0, 0, err
	}

	windows := p.cal.Horizon(today, months)
	n, err := p.entries.DeleteProjectedEntries(ctx, storage.ProjectedFilter{
		RecurringID: &def.ID,
		After:       today,
		Until:       windows[len(windows)-1].End,
	})
	if err != nil {
		return 0, 0, err
	}
	if !def.Active {
		slog.InfoContext(ctx, "Inactive definition cleared from horizon", "recurring_id", def.ID, "deleted", n)
		return int(n), 0, nil
	}

	created, err = p.populate(ctx, windows, &def.ID, req)
	if err != nil {
		return int(n), created, err
	}
	slog.InfoContext(ctx, "Definition repropagated",
		"recurring_id", def.ID,
		"deleted", n,
		"created", created)
	return int(n), created, nil
}

func (p *Projector) populate(ctx context.Context, windows []core.Window, only *int64, req HorizonRequest) (int, error) {
	defs, err := p.recurring.ListActiveRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring definitions: %w", err)
	}

	annualByMonth := indexAnnual(defs)
	created := 0

	for _, def := range defs {
		if only != nil && def.ID != *only {
			continue
		}
		strategy, err := GetCadenceStrategy(def.Cadence)
		if err != nil {
			slog.WarnContext(ctx, "Skipping recurring definition", "recurring_id", def.ID, "error", err)
			continue
		}

		for _, w := range windows {
			candidate, ok := strategy.Candidate(def, w)
			if !ok {
				continue
			}
			if req.FutureOnly && !candidate.After(req.Today.Time) {
				continue
			}
			if def.Cadence == core.Monthly && def.SkipIfAnnualOverlap && overlapsAnnual(def, annualByMonth[candidate.Month()]) {
				slog.DebugContext(ctx, "Monthly entry suppressed by annual definition",
					"recurring_id", def.ID,
					"date", candidate.String())
				continue
			}

			ok, err = p.shouldCreate(ctx, def, candidate)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to check existing entries",
					"recurring_id", def.ID,
					"date", candidate.String(),
					"error", err)
				continue
			}
			if !ok {
				continue
			}

			entry := core.LedgerEntry{
				Date:        candidate,
				Description: def.Description,
				Amount:      def.Amount,
				Kind:        def.Kind,
				CategoryID:  def.CategoryID,
				RecurringID: &def.ID,
				PeriodID:    w.ID(),
				Modified:    req.MarkModified,
			}
			if _, err := p.entries.CreateEntry(ctx, entry); err != nil {
				slog.ErrorContext(ctx, "Failed to create projected entry",
					"recurring_id", def.ID,
					"date", candidate.String(),
					"error", err)
				continue
			}
			created++
		}
	}

	slog.InfoContext(ctx, "Horizon projection complete",
		"created", created,
		"definitions", len(defs),
		"months", len(windows),
		"future_only", req.FutureOnly)
	return created, nil
}

// shouldCreate applies the idempotence and manual-edit protection checks.
func (p *Projector) shouldCreate(ctx context.Context, def core.RecurringDefinition, date core.Date) (bool, error) {
	exists, err := p.entries.EntryExists(ctx, def.ID, date)
	if err != nil || exists {
		return false, err
	}
	protected, err := p.entries.ProtectedEntryExists(ctx, def.ID, def.Description, date)
	if err != nil || protected {
		return false, err
	}
	return true, nil
}

// indexAnnual groups annual definitions by their due month.
func indexAnnual(defs []core.RecurringDefinition) map[int][]core.RecurringDefinition {
	out := make(map[int][]core.RecurringDefinition)
	for _, d := range defs {
		if d.Cadence == core.Annual && d.DueMonth >= 1 && d.DueMonth <= 12 {
			out[d.DueMonth] = append(out[d.DueMonth], d)
		}
	}
	return out
}

// overlapsAnnual reports whether one of the annual definitions due in the
// same calendar month matches def by (category, kind) or by a case-insensitive
// substring of the description in either direction.
func overlapsAnnual(def core.RecurringDefinition, annual []core.RecurringDefinition) bool {
	desc := strings.ToLower(strings.TrimSpace(def.Description))
	for _, a := range annual {
		if a.ID == def.ID {
			continue
		}
		if sameCategory(a.CategoryID, def.CategoryID) && a.Kind == def.Kind {
			return true
		}
		ad := strings.ToLower(strings.TrimSpace(a.Description))
		if desc != "" && ad != "" && (strings.Contains(ad, desc) || strings.Contains(desc, ad)) {
			return true
		}
	}
	return false
}

func sameCategory(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
