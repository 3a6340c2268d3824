package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"bilancio/internal/core"
)

// ArchiveBefore snapshots every ledger entry dated strictly before cutoff
// into archived_entries and removes it from the live table, in one transaction.
// Entries whose original id was already archived are not copied twice.
func (r *SQLiteRepository) ArchiveBefore(ctx context.Context, cutoff core.Date) (int, error) {
	var moved int64
	err := r.withTx(ctx, "archive entries", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO archived_entries
			     (original_id, date, effective_date, description, amount_cents, kind, category_id, category_name, recurring_id, period_id, modified)
			 SELECT e.id, e.date, e.effective_date, e.description, e.amount_cents, e.kind, e.category_id, c.name, e.recurring_id, e.period_id, e.modified
			 FROM ledger_entries e
			 LEFT JOIN categories c ON c.id = e.category_id
			 WHERE e.date < ?`,
			cutoff.String())
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM ledger_entries
			 WHERE date < ? AND id IN (SELECT original_id FROM archived_entries)`,
			cutoff.String())
		if err != nil {
			return err
		}
		moved, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Ledger entries archived", "cutoff", cutoff.String(), "count", moved)
	return int(moved), nil
}

// ArchivedPeriods returns the distinct period ids present in the archive, newest first.
func (r *SQLiteRepository) ArchivedPeriods(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT period_id FROM archived_entries ORDER BY period_id DESC`)
	if err != nil {
		return nil, core.Persistence("list archived periods", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, core.Persistence("list archived periods: scan", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list archived periods", err)
	}
	return out, nil
}

// ListArchived returns the archived entries of one period ordered by date.
func (r *SQLiteRepository) ListArchived(ctx context.Context, periodID int) ([]core.ArchivedLedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, original_id, date, effective_date, description, amount_cents, kind, category_id,
		        COALESCE(category_name, ''), recurring_id, period_id, modified, archived_at
		 FROM archived_entries WHERE period_id = ? ORDER BY date, original_id`, periodID)
	if err != nil {
		return nil, core.Persistence("list archived entries", err)
	}
	defer rows.Close()

	var out []core.ArchivedLedgerEntry
	for rows.Next() {
		var (
			a          core.ArchivedLedgerEntry
			date       string
			effective  sql.NullString
			kind       string
			category   sql.NullInt64
			recurring  sql.NullInt64
			modified   int
			archivedAt string
		)
		if err := rows.Scan(&a.ID, &a.OriginalID, &date, &effective, &a.Description, &a.Amount.Cents, &kind,
			&category, &a.CategoryName, &recurring, &a.PeriodID, &modified, &archivedAt); err != nil {
			return nil, core.Persistence("list archived entries: scan", err)
		}
		if a.Date, err = core.ParseDate(date); err != nil {
			return nil, core.Persistence("list archived entries: date", err)
		}
		if a.EffectiveDate, err = datePtr(effective); err != nil {
			return nil, core.Persistence("list archived entries: effective date", err)
		}
		a.Kind = core.EntryKind(kind)
		a.CategoryID = idPtr(category)
		a.RecurringID = idPtr(recurring)
		a.Modified = modified != 0
		a.ArchivedAt = parseTimestamp(archivedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("list archived entries", err)
	}
	return out, nil
}
