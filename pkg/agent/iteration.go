package agent

// MaxConsecutiveTimeouts is how many timed-out model calls in a row end the
// loop before its budget is spent.
const MaxConsecutiveTimeouts = 2

// IterationState tracks loop progress across iterations, including across a
// pause and resume.
type IterationState struct {
	CurrentIteration           int
	MaxIterations              int
	LastInteractionFailed      bool
	LastErrorMessage           string
	ConsecutiveTimeoutFailures int
}

// ShouldAbortOnTimeouts returns true if consecutive timeout failures
// have reached the threshold.
func (s *IterationState) ShouldAbortOnTimeouts() bool {
	return s.ConsecutiveTimeoutFailures >= MaxConsecutiveTimeouts
}

// BudgetExhausted reports whether no iterations are left.
func (s *IterationState) BudgetExhausted() bool {
	return s.CurrentIteration >= s.MaxIterations
}

// RecordSuccess resets failure tracking after a successful model call.
func (s *IterationState) RecordSuccess() {
	s.LastInteractionFailed = false
	s.LastErrorMessage = ""
	s.ConsecutiveTimeoutFailures = 0
}

// RecordFailure records a failed model call.
func (s *IterationState) RecordFailure(errMsg string, isTimeout bool) {
	s.LastInteractionFailed = true
	s.LastErrorMessage = errMsg
	if isTimeout {
		s.ConsecutiveTimeoutFailures++
	} else {
		s.ConsecutiveTimeoutFailures = 0
	}
}
