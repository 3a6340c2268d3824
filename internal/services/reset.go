package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// ResetRequest seeds a new opening balance and rebuilds the horizon.
type ResetRequest struct {
	OpeningBalance core.Money
	Months         int       // capped at MaxHorizonMonths, 0 for the maximum
	FullWipe       bool      // delete every entry instead of only pending projections
	BaseDate       core.Date // any day of the first financial month
	Today          core.Date // reference date, defaults to BaseDate
}

// ResetResult reports what a reset did.
type ResetResult struct {
	BackupPath       string `json:"backup_path"`
	DeletedEntries   int64  `json:"deleted_entries"`
	DeletedSummaries int64  `json:"deleted_summaries"`
	CreatedCount     int    `json:"created_count"`
	RebuiltCount     int    `json:"rebuilt_count"`
	ChainedCount     int    `json:"chained_count"`
	FullWipe         bool   `json:"full_wipe"`
}

// ResetService restarts the ledger from an opening balance. A backup of the
// database is taken before anything is deleted; if it fails nothing changes.
type ResetService struct {
	store     Store
	projector *Projector
	summaries *SummaryBuilder
	chainer   *BalanceChainer
	cal       core.Calendar
	backupDir string
	notifier  Notifier
	now       func() time.Time
}

func NewResetService(store Store, projector *Projector, summaries *SummaryBuilder, chainer *BalanceChainer,
	cal core.Calendar, backupDir string, notifier Notifier) *ResetService {
	return &ResetService{
		store:     store,
		projector: projector,
		summaries: summaries,
		chainer:   chainer,
		cal:       cal,
		backupDir: backupDir,
		notifier:  notifier,
		now:       time.Now,
	}
}

func (s *ResetService) Reset(ctx context.Context, req ResetRequest) (ResetResult, error) {
	result := ResetResult{FullWipe: req.FullWipe}
	if req.BaseDate.IsZero() {
		return result, core.Validation("base date is required")
	}
	if req.Months < 0 {
		return result, core.Validation("months cannot be negative")
	}
	if req.Months == 0 || req.Months > MaxHorizonMonths {
		req.Months = MaxHorizonMonths
	}
	if req.Today.IsZero() {
		req.Today = req.BaseDate
	}

	path, err := s.store.Backup(ctx, s.backupDir, s.now())
	if err != nil {
		return result, fmt.Errorf("backup before reset: %w", err)
	}
	result.BackupPath = path

	if err := s.store.SetOpeningBalance(ctx, req.OpeningBalance); err != nil {
		return result, err
	}

	windows := s.cal.Horizon(req.BaseDate, req.Months)
	if req.FullWipe {
		result.DeletedEntries, err = s.store.DeleteAllEntries(ctx)
	} else {
		result.DeletedEntries, err = s.store.DeleteProjectedEntries(ctx, storage.ProjectedFilter{
			After: req.Today,
			Until: windows[len(windows)-1].End,
		})
	}
	if err != nil {
		return result, err
	}

	result.CreatedCount, err = s.projector.PopulateHorizon(ctx, HorizonRequest{
		Months:     req.Months,
		BaseDate:   req.BaseDate,
		Today:      req.Today,
		FutureOnly: !req.FullWipe,
	})
	if err != nil {
		return result, err
	}

	if result.DeletedSummaries, err = s.store.DeleteAllSummaries(ctx); err != nil {
		return result, err
	}
	keys := make([]core.PeriodKey, 0, len(windows))
	for _, w := range windows {
		if _, err := s.summaries.RegenerateSummary(ctx, w.Key(), req.Today); err != nil {
			return result, err
		}
		result.RebuiltCount++
		keys = append(keys, w.Key())
	}

	chained, err := s.chainer.Chain(ctx, keys)
	result.ChainedCount = chained
	if err != nil {
		return result, err
	}

	slog.InfoContext(ctx, "Ledger reset",
		"opening_cents", req.OpeningBalance.Cents,
		"full_wipe", req.FullWipe,
		"months", req.Months,
		"backup", result.BackupPath,
		"deleted_entries", result.DeletedEntries,
		"created", result.CreatedCount,
		"rebuilt", result.RebuiltCount)

	if s.notifier != nil {
		if err := s.notifier.ResetCompleted(ctx, result); err != nil {
			slog.WarnContext(ctx, "Failed to publish reset event", "error", err)
		}
	}
	return result, nil
}
