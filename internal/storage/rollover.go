package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"bilancio/internal/core"
)

const openingBalanceKey = "opening_balance_cents"

// GetMarker returns the label of the last period whose rollover completed,
// or an empty string when no rollover ever ran.
func (r *SQLiteRepository) GetMarker(ctx context.Context) (string, error) {
	var marker string
	err := r.db.QueryRowContext(ctx, `SELECT marker FROM rollover_marker WHERE id = 1`).Scan(&marker)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", core.Persistence("get rollover marker", err)
	}
	return marker, nil
}

func (r *SQLiteRepository) SetMarker(ctx context.Context, label string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rollover_marker (id, marker, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET marker = excluded.marker, updated_at = CURRENT_TIMESTAMP`, label)
	if err != nil {
		return core.Persistence("set rollover marker", err)
	}
	return nil
}

// GetRolloverRun returns the persisted run for label.
func (r *SQLiteRepository) GetRolloverRun(ctx context.Context, label string) (core.RolloverRun, error) {
	var (
		run       core.RolloverRun
		state     string
		seed      sql.NullInt64
		completed int64
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT run_id, label, state, cursor, completed_steps, new_seed_cents, updated_at FROM rollover_runs WHERE label = ?`, label).
		Scan(&run.RunID, &run.Label, &state, &run.Cursor, &completed, &seed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return run, core.NotFound("rollover run", label)
	}
	if err != nil {
		return run, core.Persistence("get rollover run", err)
	}
	run.State = core.RolloverState(state)
	run.Completed = uint64(completed)
	if seed.Valid {
		m := core.Cents(seed.Int64)
		run.NewSeed = &m
	}
	run.UpdatedAt = parseTimestamp(updatedAt)
	return run, nil
}

func (r *SQLiteRepository) SaveRolloverRun(ctx context.Context, run core.RolloverRun) error {
	var seed sql.NullInt64
	if run.NewSeed != nil {
		seed = sql.NullInt64{Int64: run.NewSeed.Cents, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rollover_runs (label, run_id, state, cursor, completed_steps, new_seed_cents, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(label) DO UPDATE SET
		     run_id = excluded.run_id,
		     state = excluded.state,
		     cursor = excluded.cursor,
		     completed_steps = excluded.completed_steps,
		     new_seed_cents = excluded.new_seed_cents,
		     updated_at = CURRENT_TIMESTAMP`,
		run.Label, run.RunID, string(run.State), run.Cursor, int64(run.Completed), seed)
	if err != nil {
		return core.Persistence("save rollover run", err)
	}
	return nil
}

// GetOpeningBalance returns the global opening balance and whether one was set.
func (r *SQLiteRepository) GetOpeningBalance(ctx context.Context) (core.Money, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, openingBalanceKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, false, nil
	}
	if err != nil {
		return core.Money{}, false, core.Persistence("get opening balance", err)
	}
	cents, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return core.Money{}, false, core.Persistence("parse opening balance", err)
	}
	return core.Cents(cents), true, nil
}

func (r *SQLiteRepository) SetOpeningBalance(ctx context.Context, m core.Money) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		openingBalanceKey, strconv.FormatInt(m.Cents, 10))
	if err != nil {
		return core.Persistence("set opening balance", err)
	}
	return nil
}
