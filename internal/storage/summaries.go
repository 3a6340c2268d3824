package storage

import (
	"context"
	"database/sql"
	"errors"

	"bilancio/internal/core"
)

const summaryColumns = `year, month, starting_cents, income_cents, raw_expense_cents, expense_cents, ending_cents, is_seed`

func scanSummary(s rowScanner) (core.PeriodSummary, error) {
	var (
		ps   core.PeriodSummary
		seed int
	)
	err := s.Scan(&ps.Year, &ps.Month, &ps.StartingBalance.Cents, &ps.IncomeTotal.Cents,
		&ps.RawExpenseTotal.Cents, &ps.ExpenseTotal.Cents, &ps.EndingBalance.Cents, &seed)
	ps.IsSeed = seed != 0
	return ps, err
}

func getSummary(ctx context.Context, q DBTX, key core.PeriodKey) (core.PeriodSummary, error) {
	row := q.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM period_summaries WHERE year = ? AND month = ?`, key.Year, key.Month)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, core.NotFound("period summary", key.String())
	}
	if err != nil {
		return s, core.Persistence("get summary", err)
	}
	return s, nil
}

func upsertSummary(ctx context.Context, q DBTX, s core.PeriodSummary) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO period_summaries (`+summaryColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(year, month) DO UPDATE SET
		     starting_cents = excluded.starting_cents,
		     income_cents = excluded.income_cents,
		     raw_expense_cents = excluded.raw_expense_cents,
		     expense_cents = excluded.expense_cents,
		     ending_cents = excluded.ending_cents,
		     is_seed = excluded.is_seed,
		     updated_at = CURRENT_TIMESTAMP`,
		s.Year, s.Month, s.StartingBalance.Cents, s.IncomeTotal.Cents, s.RawExpenseTotal.Cents,
		s.ExpenseTotal.Cents, s.EndingBalance.Cents, boolInt(s.IsSeed))
	if err != nil {
		return core.Persistence("upsert summary", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSummary(ctx context.Context, key core.PeriodKey) (core.PeriodSummary, error) {
	return getSummary(ctx, r.db, key)
}

func (r *SQLiteRepository) UpsertSummary(ctx context.Context, s core.PeriodSummary) error {
	return upsertSummary(ctx, r.db, s)
}

// ListSummaries returns every stored summary in chronological order.
func (r *SQLiteRepository) ListSummaries(ctx context.Context) ([]core.PeriodSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM period_summaries ORDER BY year, month`)
	if err != nil {
		return nil, core.Persistence("list summaries", err)
	}
	defer rows.Close()

	var out []core.PeriodSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, core.Persistence("list summaries: scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list summaries", err)
	}
	return out, nil
}

// HasSummaryBefore reports whether any summary exists for an earlier period.
func (r *SQLiteRepository) HasSummaryBefore(ctx context.Context, key core.PeriodKey) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM period_summaries WHERE year * 100 + month < ?`, key.ID()).Scan(&n)
	if err != nil {
		return false, core.Persistence("has summary before", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) DeleteAllSummaries(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM period_summaries`)
	if err != nil {
		return 0, core.Persistence("delete summaries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PlantSeed replaces every summary with a single seed row for key whose
// starting and ending balance are both seed.
func (r *SQLiteRepository) PlantSeed(ctx context.Context, key core.PeriodKey, seed core.Money) error {
	return r.withTx(ctx, "plant seed", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM period_summaries`); err != nil {
			return err
		}
		return upsertSummary(ctx, tx, core.PeriodSummary{
			Year:            key.Year,
			Month:           key.Month,
			StartingBalance: seed,
			EndingBalance:   seed,
			IsSeed:          true,
		})
	})
}

// ChainPair copies prev's ending balance into next's starting balance and
// recomputes next's ending balance from its stored totals.
func (r *SQLiteRepository) ChainPair(ctx context.Context, prev, next core.PeriodKey) (core.PeriodSummary, error) {
	var out core.PeriodSummary
	err := r.withTx(ctx, "chain pair", func(tx *sql.Tx) error {
		p, err := getSummary(ctx, tx, prev)
		if err != nil {
			return err
		}
		n, err := getSummary(ctx, tx, next)
		if err != nil {
			return err
		}
		n.StartingBalance = p.EndingBalance
		n.Recompute()
		if err := upsertSummary(ctx, tx, n); err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}
