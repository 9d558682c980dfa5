package decision

import "github.com/fyrsmithlabs/conductor/internal/state"

// MaxAttemptsBeforeReplan is the failed-attempt count at which a task is
// broken down instead of retried.
const MaxAttemptsBeforeReplan = 3

// RetryDecision says whether a failed task should be retried or replanned.
type RetryDecision struct {
	NeedsReplan bool `json:"needsReplan"`
	Attempts    int  `json:"attempts"`
}

// EvaluateFailure decides between a plain retry and a replan.
func EvaluateFailure(attempts int) RetryDecision {
	return RetryDecision{
		NeedsReplan: attempts >= MaxAttemptsBeforeReplan,
		Attempts:    attempts,
	}
}

// MaxAttemptsFor returns the attempt ceiling for a task of complexity c.
func MaxAttemptsFor(c state.Complexity) int {
	switch c {
	case state.ComplexityLow:
		return 4
	case state.ComplexityHigh:
		return 6
	}
	return 5
}
