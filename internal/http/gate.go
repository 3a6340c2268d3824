package http

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

type rolloverRunner interface {
	Due(ctx context.Context, today core.Date) (bool, error)
	MaybeRun(ctx context.Context, today core.Date) (services.Diagnostics, error)
}

// rolloverGate triggers the pending rollover before a request is served.
// Concurrent requests share one run per period label. The request is served
// whatever the outcome.
type rolloverGate struct {
	runner rolloverRunner
	cal    core.Calendar
	today  func() core.Date
	group  singleflight.Group
	onRun  func(services.Diagnostics)
}

func (g *rolloverGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.check(r.Context())
		next.ServeHTTP(w, r)
	})
}

func (g *rolloverGate) check(ctx context.Context) {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentRollover)
	today := g.today()

	due, err := g.runner.Due(ctx, today)
	if err != nil {
		logger.WarnContext(ctx, "Rollover check failed", applog.FieldError, err)
		return
	}
	if !due {
		return
	}

	label := g.cal.Label(today)
	_, err, _ = g.group.Do(label, func() (any, error) {
		// The run outlives a cancelled request.
		diag, err := g.runner.MaybeRun(context.WithoutCancel(ctx), today)
		if err != nil {
			return nil, err
		}
		if !diag.OK() {
			logger.WarnContext(ctx, "Automatic rollover finished with errors",
				applog.FieldLabel, label,
				applog.FieldRunID, diag.RunID,
				"step_errors", len(diag.StepErrors))
		}
		if !diag.Skipped && g.onRun != nil {
			g.onRun(diag)
		}
		return diag, nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "Automatic rollover failed", applog.FieldLabel, label, applog.FieldError, err)
	}
}
