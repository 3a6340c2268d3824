package core

import (
	"strings"
	"time"
)

const (
	Income  EntryKind = "income"
	Expense EntryKind = "expense"
)

const (
	Monthly Cadence = "monthly"
	Annual  Cadence = "annual"
)

// Entry states derived from the effective date and the reference day.
const (
	EntryScheduled EntryState = iota
	EntryOverdueUnconfirmed
	EntryExecuted
)

type (
	EntryKind  string
	Cadence    string
	EntryState int

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID   int64
		Name string
		Kind EntryKind
	}

	LedgerEntry struct {
		ID            int64
		Date          Date
		EffectiveDate *Date // nil until the entry has been confirmed
		Description   string
		Amount        Money
		Kind          EntryKind
		CategoryID    *int64
		RecurringID   *int64
		PeriodID      int
		Modified      bool // set once a human edits a projected entry
	}

	RecurringDefinition struct {
		ID                  int64
		Description         string
		Kind                EntryKind
		Amount              Money
		DayOfMonth          int
		Cadence             Cadence
		DueMonth            int // calendar month an annual definition fires in
		CategoryID          *int64
		SkipIfAnnualOverlap bool
		Active              bool
	}

	CategoryBudget struct {
		CategoryID int64
		Allocation Money
	}

	MonthlyBudget struct {
		ID         int64
		CategoryID int64
		Year       int
		Month      int
		Allocation Money
		Residual   Money
	}

	PeriodSummary struct {
		Year            int
		Month           int
		StartingBalance Money
		IncomeTotal     Money
		RawExpenseTotal Money
		ExpenseTotal    Money // raw expenses plus positive budget residuals
		EndingBalance   Money
		IsSeed          bool
	}

	ArchivedLedgerEntry struct {
		ID            int64
		OriginalID    int64
		Date          Date
		EffectiveDate *Date
		Description   string
		Amount        Money
		Kind          EntryKind
		CategoryID    *int64
		CategoryName  string
		RecurringID   *int64
		PeriodID      int
		Modified      bool
		ArchivedAt    time.Time
	}
)

func (k EntryKind) Valid() bool {
	return k == Income || k == Expense
}

func (c Cadence) Valid() bool {
	return c == Monthly || c == Annual
}

func (s EntryState) String() string {
	switch s {
	case EntryExecuted:
		return "executed"
	case EntryOverdueUnconfirmed:
		return "overdue_unconfirmed"
	default:
		return "scheduled"
	}
}

// State classifies the entry relative to today.
func (e LedgerEntry) State(today Date) EntryState {
	if e.EffectiveDate != nil {
		return EntryExecuted
	}
	if !e.Date.After(today.Time) {
		return EntryOverdueUnconfirmed
	}
	return EntryScheduled
}

// Happened reports whether the entry counts as actual spend or income.
// Overdue entries without a confirmation count only when overdueIsActual is set.
func (e LedgerEntry) Happened(today Date, overdueIsActual bool) bool {
	switch e.State(today) {
	case EntryExecuted:
		return true
	case EntryOverdueUnconfirmed:
		return overdueIsActual
	default:
		return false
	}
}

func (e LedgerEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.EffectiveDate != nil {
		if err := e.EffectiveDate.Validate(); err != nil {
			return Validation("invalid effective date: %v", err)
		}
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return Validation("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Kind.Valid() {
		return Validation("invalid entry kind %q", e.Kind)
	}
	return nil
}

func (d RecurringDefinition) Validate() error {
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(d.Description) > 200 {
		return Validation("description too long (max 200 characters)")
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return Validation("invalid entry kind %q", d.Kind)
	}
	if d.DayOfMonth < 1 || d.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	switch d.Cadence {
	case Monthly:
	case Annual:
		if d.DueMonth < 1 || d.DueMonth > 12 {
			return Validation("annual definition needs a due month, got %d", d.DueMonth)
		}
	default:
		return Validation("invalid cadence %q", d.Cadence)
	}
	return nil
}

// Key returns the summary's period key.
func (s PeriodSummary) Key() PeriodKey {
	return PeriodKey{Year: s.Year, Month: s.Month}
}

// Recompute refreshes EndingBalance from the stored totals.
func (s *PeriodSummary) Recompute() {
	s.EndingBalance = Money{Cents: s.StartingBalance.Cents + s.IncomeTotal.Cents - s.ExpenseTotal.Cents}
}
