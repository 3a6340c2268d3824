// Package services provides the period engine: projection of recurring
// definitions, budget reconciliation, summaries, balance chaining, rollover
// and reset.
//
// This file implements the strategy used to place a recurring definition
// inside a financial month. Each cadence has its own strategy.

package services

import (
	"fmt"

	"bilancio/internal/core"
)

// CadenceStrategy decides on which day, if any, a definition fires inside a window.
type CadenceStrategy interface {
	// Candidate returns the scheduled date of def in w and whether def fires there.
	Candidate(def core.RecurringDefinition, w core.Window) (core.Date, bool)
}

// MonthlyStrategy fires once in every financial month.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Candidate(def core.RecurringDefinition, w core.Window) (core.Date, bool) {
	return CandidateDate(def.DayOfMonth, w)
}

// AnnualStrategy fires only in the financial month whose candidate day falls
// in the definition's due month.
type AnnualStrategy struct{}

func (AnnualStrategy) Candidate(def core.RecurringDefinition, w core.Window) (core.Date, bool) {
	d, ok := CandidateDate(def.DayOfMonth, w)
	if !ok || d.Month() != def.DueMonth {
		return core.Date{}, false
	}
	return d, true
}

// CandidateDate clamps day against the calendar month of the window start,
// then of the window end, and returns the first result inside the window.
func CandidateDate(day int, w core.Window) (core.Date, bool) {
	if c := core.ClampedDate(w.Start.Year(), w.Start.Month(), day); w.Contains(c) {
		return c, true
	}
	if c := core.ClampedDate(w.End.Year(), w.End.Month(), day); w.Contains(c) {
		return c, true
	}
	return core.Date{}, false
}

var cadenceStrategies = map[core.Cadence]CadenceStrategy{
	core.Monthly: MonthlyStrategy{},
	core.Annual:  AnnualStrategy{},
}

// GetCadenceStrategy returns the strategy for a cadence.
func GetCadenceStrategy(c core.Cadence) (CadenceStrategy, error) {
	s, ok := cadenceStrategies[c]
	if !ok {
		return nil, fmt.Errorf("unknown cadence: %s", c)
	}
	return s, nil
}
