package http

import (
	"bilancio/internal/core"
	"bilancio/internal/services"
)

// Money leaves the API as a fixed two-decimal string so clients never parse floats.

type periodResponse struct {
	Date     *core.Date `json:"date,omitempty"`
	PeriodID int        `json:"period_id"`
	Year     int        `json:"year"`
	Month    int        `json:"month"`
	Start    core.Date  `json:"start"`
	End      core.Date  `json:"end"`
	Days     int        `json:"days"`
	Label    string     `json:"label"`
}

func newPeriodResponse(d *core.Date, w core.Window) periodResponse {
	k := w.Key()
	return periodResponse{
		Date:     d,
		PeriodID: w.ID(),
		Year:     k.Year,
		Month:    k.Month,
		Start:    w.Start,
		End:      w.End,
		Days:     w.Days(),
		Label:    w.Label(),
	}
}

type summaryDTO struct {
	Year            int    `json:"year"`
	Month           int    `json:"month"`
	StartingBalance string `json:"starting_balance"`
	IncomeTotal     string `json:"income_total"`
	RawExpenseTotal string `json:"raw_expense_total"`
	ExpenseTotal    string `json:"expense_total"`
	EndingBalance   string `json:"ending_balance"`
	IsSeed          bool   `json:"is_seed"`
}

func newSummaryDTO(s core.PeriodSummary) summaryDTO {
	return summaryDTO{
		Year:            s.Year,
		Month:           s.Month,
		StartingBalance: s.StartingBalance.String(),
		IncomeTotal:     s.IncomeTotal.String(),
		RawExpenseTotal: s.RawExpenseTotal.String(),
		ExpenseTotal:    s.ExpenseTotal.String(),
		EndingBalance:   s.EndingBalance.String(),
		IsSeed:          s.IsSeed,
	}
}

type entryDTO struct {
	ID            int64          `json:"id"`
	Date          core.Date      `json:"date"`
	EffectiveDate *core.Date     `json:"effective_date,omitempty"`
	Description   string         `json:"description"`
	Amount        string         `json:"amount"`
	Kind          core.EntryKind `json:"kind"`
	CategoryID    *int64         `json:"category_id,omitempty"`
	RecurringID   *int64         `json:"recurring_id,omitempty"`
	PeriodID      int            `json:"period_id"`
	Modified      bool           `json:"modified"`
	State         string         `json:"state"`
}

func newEntryDTOs(entries []core.LedgerEntry, today core.Date) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO{
			ID:            e.ID,
			Date:          e.Date,
			EffectiveDate: e.EffectiveDate,
			Description:   e.Description,
			Amount:        e.Amount.String(),
			Kind:          e.Kind,
			CategoryID:    e.CategoryID,
			RecurringID:   e.RecurringID,
			PeriodID:      e.PeriodID,
			Modified:      e.Modified,
			State:         e.State(today).String(),
		})
	}
	return out
}

type residualDTO struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	Allocation   string `json:"allocation"`
	Actual       string `json:"actual"`
	Planned      string `json:"planned"`
	Residual     string `json:"residual"`
}

type categoryTotalDTO struct {
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
}

type detailDTO struct {
	Period           periodResponse `json:"period"`
	Future           bool           `json:"future"`
	Summary          *summaryDTO    `json:"summary,omitempty"`
	Executed         []entryDTO     `json:"executed"`
	Pending          []entryDTO     `json:"pending"`
	ExecutedIncome   string         `json:"executed_income"`
	ExecutedExpense  string         `json:"executed_expense"`
	PendingIncome    string         `json:"pending_income"`
	PendingExpense   string         `json:"pending_expense"`
	Budgets          []residualDTO  `json:"budgets"`
	PositiveResidual string         `json:"positive_residual"`
	StartingBalance  string         `json:"starting_balance"`
	CurrentBalance   string         `json:"current_balance"`
	ProjectedEnding  string         `json:"projected_ending"`
}

func newDetailDTO(d services.PeriodDetail, today core.Date) detailDTO {
	out := detailDTO{
		Period:           newPeriodResponse(nil, d.Window),
		Future:           d.Future,
		Executed:         newEntryDTOs(d.Executed, today),
		Pending:          newEntryDTOs(d.Pending, today),
		ExecutedIncome:   d.ExecutedIncome.String(),
		ExecutedExpense:  d.ExecutedExpense.String(),
		PendingIncome:    d.PendingIncome.String(),
		PendingExpense:   d.PendingExpense.String(),
		Budgets:          make([]residualDTO, 0, len(d.Budgets)),
		PositiveResidual: d.PositiveResidual.String(),
		StartingBalance:  d.StartingBalance.String(),
		CurrentBalance:   d.CurrentBalance.String(),
		ProjectedEnding:  d.ProjectedEnding.String(),
	}
	if d.Summary != nil {
		s := newSummaryDTO(*d.Summary)
		out.Summary = &s
	}
	for _, r := range d.Budgets {
		out.Budgets = append(out.Budgets, residualDTO{
			CategoryID:   r.CategoryID,
			CategoryName: r.CategoryName,
			Allocation:   r.Allocation.String(),
			Actual:       r.Actual.String(),
			Planned:      r.Planned.String(),
			Residual:     r.Amount().String(),
		})
	}
	return out
}

// diagnosticsDTO exposes the rollover diagnostics with the seed as a decimal string.
type diagnosticsDTO struct {
	services.Diagnostics
	NewSeed string `json:"new_seed,omitempty"`
}

func newDiagnosticsDTO(d services.Diagnostics) diagnosticsDTO {
	out := diagnosticsDTO{Diagnostics: d}
	if d.NewSeed != nil {
		out.NewSeed = d.NewSeed.String()
	}
	return out
}

type archivedEntryDTO struct {
	ID            int64          `json:"id"`
	OriginalID    int64          `json:"original_id"`
	Date          core.Date      `json:"date"`
	EffectiveDate *core.Date     `json:"effective_date,omitempty"`
	Description   string         `json:"description"`
	Amount        string         `json:"amount"`
	Kind          core.EntryKind `json:"kind"`
	CategoryName  string         `json:"category_name,omitempty"`
	RecurringID   *int64         `json:"recurring_id,omitempty"`
	PeriodID      int            `json:"period_id"`
	Modified      bool           `json:"modified"`
	ArchivedAt    string         `json:"archived_at"`
}

func newArchivedDTOs(entries []core.ArchivedLedgerEntry) []archivedEntryDTO {
	out := make([]archivedEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, archivedEntryDTO{
			ID:            e.ID,
			OriginalID:    e.OriginalID,
			Date:          e.Date,
			EffectiveDate: e.EffectiveDate,
			Description:   e.Description,
			Amount:        e.Amount.String(),
			Kind:          e.Kind,
			CategoryName:  e.CategoryName,
			RecurringID:   e.RecurringID,
			PeriodID:      e.PeriodID,
			Modified:      e.Modified,
			ArchivedAt:    e.ArchivedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

// Request bodies. Dates are optional YYYY-MM-DD strings defaulting to today.

type horizonRequest struct {
	Months       int    `json:"months"`
	BaseDate     string `json:"base_date"`
	FutureOnly   bool   `json:"future_only"`
	MarkModified bool   `json:"mark_modified"`
}

type rolloverRequest struct {
	Force    bool   `json:"force"`
	Months   int    `json:"months"`
	BaseDate string `json:"base_date"`
}

type resetRequest struct {
	OpeningBalance string `json:"opening_balance"`
	Months         int    `json:"months"`
	FullWipe       bool   `json:"full_wipe"`
	BaseDate       string `json:"base_date"`
}

type repropagateRequest struct {
	Months int `json:"months"`
}

type repropagateResponse struct {
	RecurringID int64 `json:"recurring_id"`
	Deleted     int   `json:"deleted"`
	Created     int   `json:"created"`
}
