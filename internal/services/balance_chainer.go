package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// BalanceChainer carries closing balances forward across consecutive periods.
type BalanceChainer struct {
	summaries SummaryStore
}

func NewBalanceChainer(summaries SummaryStore) *BalanceChainer {
	return &BalanceChainer{summaries: summaries}
}

// Chain walks keys in order and, for each adjacent pair, copies the first
// period's ending balance into the second's starting balance. Every pair runs
// in its own transaction; a failing pair is logged and skipped without undoing
// the pairs before it. It returns the number of pairs updated and the joined
// errors of the failed ones.
func (c *BalanceChainer) Chain(ctx context.Context, keys []core.PeriodKey) (int, error) {
	var (
		chained int
		errs    []error
	)
	for i := 0; i+1 < len(keys); i++ {
		prev, next := keys[i], keys[i+1]
		s, err := c.summaries.ChainPair(ctx, prev, next)
		if err != nil {
			slog.WarnContext(ctx, "Skipping balance chain pair",
				"from", prev.String(),
				"to", next.String(),
				"error", err)
			errs = append(errs, fmt.Errorf("chain %s -> %s: %w", prev, next, err))
			continue
		}
		chained++
		slog.DebugContext(ctx, "Balance chained",
			"from", prev.String(),
			"to", next.String(),
			"starting_cents", s.StartingBalance.Cents,
			"ending_cents", s.EndingBalance.Cents)
	}
	return chained, errors.Join(errs...)
}
