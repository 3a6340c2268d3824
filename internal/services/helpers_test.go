package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps the real repository and fails selected operations.
type faultyStore struct {
	*storage.SQLiteRepository
	failArchive  bool
	failBudgets  bool
	failBackup   bool
	failSave     bool
	failMarker   bool
	failChainFor map[core.PeriodKey]bool
}

func (f *faultyStore) SaveResiduals(ctx context.Context, budgets []core.MonthlyBudget) error {
	if f.failSave {
		return core.Persistence("save residuals", errInjected)
	}
	return f.SQLiteRepository.SaveResiduals(ctx, budgets)
}

func (f *faultyStore) SetMarker(ctx context.Context, label string) error {
	if f.failMarker {
		return core.Persistence("set marker", errInjected)
	}
	return f.SQLiteRepository.SetMarker(ctx, label)
}

func (f *faultyStore) ArchiveBefore(ctx context.Context, cutoff core.Date) (int, error) {
	if f.failArchive {
		return 0, core.Persistence("archive entries", errInjected)
	}
	return f.SQLiteRepository.ArchiveBefore(ctx, cutoff)
}

func (f *faultyStore) ListCategoryBudgets(ctx context.Context) ([]core.CategoryBudget, error) {
	if f.failBudgets {
		return nil, core.Persistence("list category budgets", errInjected)
	}
	return f.SQLiteRepository.ListCategoryBudgets(ctx)
}

func (f *faultyStore) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if f.failBackup {
		return "", core.Persistence("backup database", errInjected)
	}
	return f.SQLiteRepository.Backup(ctx, dir, now)
}

func (f *faultyStore) ChainPair(ctx context.Context, prev, next core.PeriodKey) (core.PeriodSummary, error) {
	if f.failChainFor[next] {
		return core.PeriodSummary{}, core.Persistence("chain pair", errInjected)
	}
	return f.SQLiteRepository.ChainPair(ctx, prev, next)
}

type testEnv struct {
	repo   *storage.SQLiteRepository
	store  *faultyStore
	engine *Engine
	events *recordingNotifier
}

type recordingNotifier struct {
	rollovers []Diagnostics
	resets    []ResetResult
}

func (n *recordingNotifier) RolloverCompleted(_ context.Context, d Diagnostics) error {
	n.rollovers = append(n.rollovers, d)
	return nil
}

func (n *recordingNotifier) ResetCompleted(_ context.Context, r ResetResult) error {
	n.resets = append(n.resets, r)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "bilancio.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := &faultyStore{SQLiteRepository: repo, failChainFor: map[core.PeriodKey]bool{}}
	events := &recordingNotifier{}
	engine := NewEngine(store, Options{
		Calendar:        core.DefaultCalendar(),
		Horizon:         6,
		ExtendMonths:    1,
		OverdueIsActual: true,
		BackupDir:       filepath.Join(dir, "backups"),
	}, events)
	return &testEnv{repo: repo, store: store, engine: engine, events: events}
}

func (e *testEnv) category(t *testing.T, name string) int64 {
	t.Helper()
	id, err := e.repo.CreateCategory(context.Background(), name, core.Expense)
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	return id
}

func (e *testEnv) recurring(t *testing.T, d core.RecurringDefinition) int64 {
	t.Helper()
	d.Active = true
	if d.Kind == "" {
		d.Kind = core.Expense
	}
	if d.Cadence == "" {
		d.Cadence = core.Monthly
	}
	id, err := e.repo.CreateRecurring(context.Background(), d)
	if err != nil {
		t.Fatalf("CreateRecurring: %v", err)
	}
	return id
}

func (e *testEnv) entry(t *testing.T, le core.LedgerEntry) int64 {
	t.Helper()
	if le.Kind == "" {
		le.Kind = core.Expense
	}
	le.PeriodID = e.engine.Calendar.PeriodID(le.Date)
	id, err := e.repo.CreateEntry(context.Background(), le)
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return id
}

func (e *testEnv) entries(t *testing.T) []core.LedgerEntry {
	t.Helper()
	list, err := e.repo.ListEntries(context.Background(), core.NewDate(2000, 1, 1), core.NewDate(2100, 1, 1))
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	return list
}

func i64(v int64) *int64 { return &v }

func datePtr(y, m, d int) *core.Date {
	v := core.NewDate(y, m, d)
	return &v
}

func key(y, m int) core.PeriodKey {
	return core.PeriodKey{Year: y, Month: m}
}
