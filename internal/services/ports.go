package services

import (
	"context"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// EntryStore is the ledger entry persistence used by the projector and the
// aggregation services.
type EntryStore interface {
	CreateEntry(ctx context.Context, e core.LedgerEntry) (int64, error)
	EntryExists(ctx context.Context, recurringID int64, date core.Date) (bool, error)
	ProtectedEntryExists(ctx context.Context, recurringID int64, description string, date core.Date) (bool, error)
	ListEntries(ctx context.Context, start, end core.Date) ([]core.LedgerEntry, error)
	LastProjectedDate(ctx context.Context) (core.Date, bool, error)
	DeleteProjectedEntries(ctx context.Context, f storage.ProjectedFilter) (int64, error)
	DeleteAllEntries(ctx context.Context) (int64, error)
}

type RecurringStore interface {
	GetRecurring(ctx context.Context, id int64) (core.RecurringDefinition, error)
	ListActiveRecurring(ctx context.Context) ([]core.RecurringDefinition, error)
}

type CategoryStore interface {
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
}

type BudgetStore interface {
	GetCategoryBudget(ctx context.Context, categoryID int64) (core.CategoryBudget, error)
	ListCategoryBudgets(ctx context.Context) ([]core.CategoryBudget, error)
	GetMonthlyBudget(ctx context.Context, categoryID int64, key core.PeriodKey) (core.MonthlyBudget, error)
	ListMonthlyBudgets(ctx context.Context, key core.PeriodKey) ([]core.MonthlyBudget, error)
	CreateMonthlyBudget(ctx context.Context, b core.MonthlyBudget) (core.MonthlyBudget, error)
	SaveResiduals(ctx context.Context, budgets []core.MonthlyBudget) error
}

type SummaryStore interface {
	GetSummary(ctx context.Context, key core.PeriodKey) (core.PeriodSummary, error)
	UpsertSummary(ctx context.Context, s core.PeriodSummary) error
	HasSummaryBefore(ctx context.Context, key core.PeriodKey) (bool, error)
	DeleteAllSummaries(ctx context.Context) (int64, error)
	PlantSeed(ctx context.Context, key core.PeriodKey, seed core.Money) error
	ChainPair(ctx context.Context, prev, next core.PeriodKey) (core.PeriodSummary, error)
}

type SettingsStore interface {
	GetOpeningBalance(ctx context.Context) (core.Money, bool, error)
	SetOpeningBalance(ctx context.Context, m core.Money) error
}

type ArchiveStore interface {
	ArchiveBefore(ctx context.Context, cutoff core.Date) (int, error)
}

type RolloverStore interface {
	GetMarker(ctx context.Context) (string, error)
	SetMarker(ctx context.Context, label string) error
	GetRolloverRun(ctx context.Context, label string) (core.RolloverRun, error)
	SaveRolloverRun(ctx context.Context, run core.RolloverRun) error
}

type BackupStore interface {
	Backup(ctx context.Context, dir string, now time.Time) (string, error)
}

// Store is everything the engine needs from persistence.
// *storage.SQLiteRepository satisfies it.
type Store interface {
	EntryStore
	RecurringStore
	CategoryStore
	BudgetStore
	SummaryStore
	SettingsStore
	ArchiveStore
	RolloverStore
	BackupStore
}

// Notifier announces completed maintenance runs. It may be nil.
type Notifier interface {
	RolloverCompleted(ctx context.Context, d Diagnostics) error
	ResetCompleted(ctx context.Context, r ResetResult) error
}

var _ Store = (*storage.SQLiteRepository)(nil)
