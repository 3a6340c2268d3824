package core

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID int64
	Name       string
	Amount     Money
}

// PeriodTotals is the raw aggregation of one financial month.
type PeriodTotals struct {
	Key              PeriodKey
	Income           Money
	RawExpense       Money
	PositiveResidual Money
}

// AdjustedExpense is raw expense plus the unspent (positive) budget residuals.
func (t PeriodTotals) AdjustedExpense() Money {
	adj := t.RawExpense.Add(t.PositiveResidual)
	if adj.Cents < 0 {
		return Money{}
	}
	return adj
}

// Residual is the budget position of one category in one financial month.
type Residual struct {
	CategoryID   int64
	CategoryName string
	Key          PeriodKey
	Allocation   Money
	Actual       Money
	Planned      Money
}

// Amount returns allocation - actual - planned; it may be negative.
func (r Residual) Amount() Money {
	return Money{Cents: r.Allocation.Cents - r.Actual.Cents - r.Planned.Cents}
}
