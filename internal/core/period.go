package core

import "fmt"

// DefaultStartDay is the day of the month a financial period starts on.
const DefaultStartDay = 27

// Calendar computes financial-month windows that start on StartDay and end
// the day before StartDay in the following calendar month.
type Calendar struct {
	StartDay int
}

// Window is an inclusive [Start, End] financial month.
type Window struct {
	Start Date
	End   Date
}

// PeriodKey identifies a financial month by the calendar month of its end date.
type PeriodKey struct {
	Year  int
	Month int
}

// NewCalendar returns a calendar starting on startDay. Days outside 2..28 are
// rejected since they do not exist in every month or leave no room for the
// previous window to end.
func NewCalendar(startDay int) (Calendar, error) {
	if startDay < 2 || startDay > 28 {
		return Calendar{}, Validation("period start day %d out of range 2..28", startDay)
	}
	return Calendar{StartDay: startDay}, nil
}

// DefaultCalendar returns the 27th-based calendar.
func DefaultCalendar() Calendar {
	return Calendar{StartDay: DefaultStartDay}
}

// Boundaries returns the financial month containing d.
func (c Calendar) Boundaries(d Date) Window {
	y, m := d.Year(), d.Month()
	if d.Day() >= c.StartDay {
		ny, nm := addMonths(y, m, 1)
		return Window{
			Start: ClampedDate(y, m, c.StartDay),
			End:   ClampedDate(ny, nm, c.StartDay-1),
		}
	}
	py, pm := addMonths(y, m, -1)
	return Window{
		Start: ClampedDate(py, pm, c.StartDay),
		End:   ClampedDate(y, m, c.StartDay-1),
	}
}

// Label names the window after its end month, e.g. "February 2025 - 27/01 - 26/02/2025".
func (c Calendar) Label(d Date) string {
	return c.Boundaries(d).Label()
}

// PeriodID returns YYYYMM of the window's end date.
func (c Calendar) PeriodID(d Date) int {
	return c.Boundaries(d).ID()
}

// ForMonth returns the window whose end date falls in year/month.
func (c Calendar) ForMonth(year, month int) Window {
	return c.Boundaries(NewDate(year, month, 1))
}

// ForKey is ForMonth for a PeriodKey.
func (c Calendar) ForKey(k PeriodKey) Window {
	return c.ForMonth(k.Year, k.Month)
}

// Shift returns the window n financial months after w (before, for negative n).
func (c Calendar) Shift(w Window, n int) Window {
	k := w.Key().Add(n)
	return c.ForKey(k)
}

// Horizon returns n consecutive windows starting with the one containing base.
func (c Calendar) Horizon(base Date, n int) []Window {
	first := c.Boundaries(base)
	out := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Shift(first, i))
	}
	return out
}

func (w Window) Contains(d Date) bool {
	return !d.Before(w.Start.Time) && !d.After(w.End.Time)
}

// Days returns the window length in days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start.Time).Hours()/24) + 1
}

func (w Window) Key() PeriodKey {
	return PeriodKey{Year: w.End.Year(), Month: w.End.Month()}
}

func (w Window) ID() int {
	return w.Key().ID()
}

func (w Window) Label() string {
	return fmt.Sprintf("%s %d - %s - %s",
		w.End.Time.Month().String(), w.End.Year(),
		w.Start.Format("02/01"), w.End.Format("02/01/2006"))
}

// ID returns YYYYMM.
func (k PeriodKey) ID() int {
	return k.Year*100 + k.Month
}

// Add moves the key by n calendar months.
func (k PeriodKey) Add(n int) PeriodKey {
	y, m := addMonths(k.Year, k.Month, n)
	return PeriodKey{Year: y, Month: m}
}

func (k PeriodKey) Before(o PeriodKey) bool {
	return k.ID() < o.ID()
}

func (k PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// PeriodKeyFromID parses a YYYYMM identifier.
func PeriodKeyFromID(id int) (PeriodKey, error) {
	k := PeriodKey{Year: id / 100, Month: id % 100}
	if k.Month < 1 || k.Month > 12 || k.Year < 1 {
		return PeriodKey{}, Validation("invalid period id %d", id)
	}
	return k, nil
}

func addMonths(year, month, n int) (int, int) {
	idx := year*12 + (month - 1) + n
	return idx / 12, idx%12 + 1
}
