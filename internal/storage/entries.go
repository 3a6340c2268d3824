package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"bilancio/internal/core"
)

const entryColumns = `id, date, effective_date, description, amount_cents, kind, category_id, recurring_id, period_id, modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (core.LedgerEntry, error) {
	var (
		e         core.LedgerEntry
		date      string
		effective sql.NullString
		kind      string
		category  sql.NullInt64
		recurring sql.NullInt64
		modified  int
	)
	if err := s.Scan(&e.ID, &date, &effective, &e.Description, &e.Amount.Cents, &kind, &category, &recurring, &e.PeriodID, &modified); err != nil {
		return e, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return e, err
	}
	e.Date = d
	if e.EffectiveDate, err = datePtr(effective); err != nil {
		return e, err
	}
	e.Kind = core.EntryKind(kind)
	e.CategoryID = idPtr(category)
	e.RecurringID = idPtr(recurring)
	e.Modified = modified != 0
	return e, nil
}

func queryEntries(ctx context.Context, q DBTX, op, query string, args ...any) ([]core.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence(op, err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, core.Persistence(op+": scan", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence(op, err)
	}
	return out, nil
}

// CreateEntry inserts a ledger entry. PeriodID must already be derived by the caller.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.LedgerEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (date, effective_date, description, amount_cents, kind, category_id, recurring_id, period_id, modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Date.String(), nullableDate(e.EffectiveDate), e.Description, e.Amount.Cents, string(e.Kind),
		nullableID(e.CategoryID), nullableID(e.RecurringID), e.PeriodID, boolInt(e.Modified))
	if err != nil {
		return 0, core.Persistence("create entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, core.Persistence("create entry: last insert id", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, core.NotFound("ledger entry", id)
	}
	if err != nil {
		return e, core.Persistence("get entry", err)
	}
	return e, nil
}

// UpdateEntry applies a human edit. Entries that came from a recurring
// definition are flagged as modified so projection never touches them again.
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries
		 SET date = ?, effective_date = ?, description = ?, amount_cents = ?, kind = ?, category_id = ?, period_id = ?,
		     modified = CASE WHEN recurring_id IS NOT NULL THEN 1 ELSE modified END
		 WHERE id = ?`,
		e.Date.String(), nullableDate(e.EffectiveDate), e.Description, e.Amount.Cents, string(e.Kind),
		nullableID(e.CategoryID), e.PeriodID, e.ID)
	if err != nil {
		return core.Persistence("update entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("ledger entry", e.ID)
	}
	slog.InfoContext(ctx, "Ledger entry updated", "id", e.ID, "date", e.Date.String(), "amount_cents", e.Amount.Cents)
	return nil
}

// ConfirmEntry records the day the entry actually happened.
func (r *SQLiteRepository) ConfirmEntry(ctx context.Context, id int64, effective core.Date) error {
	if err := effective.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE ledger_entries SET effective_date = ? WHERE id = ?`, effective.String(), id)
	if err != nil {
		return core.Persistence("confirm entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("ledger entry", id)
	}
	return nil
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return core.Persistence("delete entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("ledger entry", id)
	}
	return nil
}

// EntryExists reports whether the definition already produced an entry on date.
func (r *SQLiteRepository) EntryExists(ctx context.Context, recurringID int64, date core.Date) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_entries WHERE recurring_id = ? AND date = ? LIMIT 1`,
		recurringID, date.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, core.Persistence("entry exists", err)
	}
	return true, nil
}

// ProtectedEntryExists reports whether a manually modified entry on date
// belongs to the definition or carries the same description.
func (r *SQLiteRepository) ProtectedEntryExists(ctx context.Context, recurringID int64, description string, date core.Date) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM ledger_entries
		 WHERE date = ? AND modified = 1 AND (recurring_id = ? OR description = ?)
		 LIMIT 1`,
		date.String(), recurringID, description).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, core.Persistence("protected entry exists", err)
	}
	return true, nil
}

// ListEntries returns every entry dated within [start, end], oldest first.
func (r *SQLiteRepository) ListEntries(ctx context.Context, start, end core.Date) ([]core.LedgerEntry, error) {
	return queryEntries(ctx, r.db, "list entries",
		`SELECT `+entryColumns+` FROM ledger_entries WHERE date >= ? AND date <= ? ORDER BY date, id`,
		start.String(), end.String())
}

// ListEntriesByRecurring returns the entries projected from one definition.
func (r *SQLiteRepository) ListEntriesByRecurring(ctx context.Context, recurringID int64) ([]core.LedgerEntry, error) {
	return queryEntries(ctx, r.db, "list entries by recurring",
		`SELECT `+entryColumns+` FROM ledger_entries WHERE recurring_id = ? ORDER BY date, id`, recurringID)
}

// LastProjectedDate returns the latest date of any projected entry.
func (r *SQLiteRepository) LastProjectedDate(ctx context.Context) (core.Date, bool, error) {
	var last sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM ledger_entries WHERE recurring_id IS NOT NULL`).Scan(&last)
	if err != nil {
		return core.Date{}, false, core.Persistence("last projected date", err)
	}
	d, err := datePtr(last)
	if err != nil {
		return core.Date{}, false, core.Persistence("last projected date", err)
	}
	if d == nil {
		return core.Date{}, false, nil
	}
	return *d, true, nil
}

// ProjectedFilter selects projected entries that are still safe to regenerate.
type ProjectedFilter struct {
	RecurringID *int64    // nil matches every definition
	After       core.Date // exclusive lower bound
	Until       core.Date // inclusive upper bound, zero for none
}

// DeleteProjectedEntries removes unexecuted, unmodified projected entries.
func (r *SQLiteRepository) DeleteProjectedEntries(ctx context.Context, f ProjectedFilter) (int64, error) {
	query := `DELETE FROM ledger_entries
		WHERE recurring_id IS NOT NULL AND modified = 0 AND effective_date IS NULL AND date > ?`
	args := []any{f.After.String()}
	if f.RecurringID != nil {
		query += ` AND recurring_id = ?`
		args = append(args, *f.RecurringID)
	}
	if !f.Until.IsZero() {
		query += ` AND date <= ?`
		args = append(args, f.Until.String())
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, core.Persistence("delete projected entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) DeleteAllEntries(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_entries`)
	if err != nil {
		return 0, core.Persistence("delete all entries", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries`).Scan(&n); err != nil {
		return 0, core.Persistence("count entries", err)
	}
	return n, nil
}
