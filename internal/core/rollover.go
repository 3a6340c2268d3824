package core

import "time"

// RolloverState is the coarse phase of a rollover run.
type RolloverState string

const (
	RolloverIdle        RolloverState = "idle"
	RolloverArchiving   RolloverState = "archiving"
	RolloverProjecting  RolloverState = "projecting"
	RolloverSummarizing RolloverState = "summarizing"
	RolloverDone        RolloverState = "done"
	RolloverError       RolloverState = "error"
)

// RolloverRun is the persisted cursor of the rollover for one period label.
// Cursor is the index of the first step not yet completed; Completed holds one
// bit per completed step so a resumed run never repeats a step.
type RolloverRun struct {
	RunID     string
	Label     string
	State     RolloverState
	Cursor    int
	Completed uint64
	NewSeed   *Money
	UpdatedAt time.Time
}

// StepDone reports whether step i completed.
func (r RolloverRun) StepDone(i int) bool {
	return r.Completed&(1<<uint(i)) != 0
}

// MarkStep records step i as completed.
func (r *RolloverRun) MarkStep(i int) {
	r.Completed |= 1 << uint(i)
}

// FirstPending returns the index of the first of n steps not yet completed,
// or n when all are.
func (r RolloverRun) FirstPending(n int) int {
	for i := 0; i < n; i++ {
		if !r.StepDone(i) {
			return i
		}
	}
	return n
}
