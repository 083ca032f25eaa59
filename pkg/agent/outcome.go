package agent

// OutcomeKind tells how an iteration loop ended.
type OutcomeKind int

// Outcome kinds.
const (
	KindCompleted OutcomeKind = iota + 1
	KindPaused
	KindFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindPaused:
		return "paused"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of IterationController.Run. Exactly one of
// FinalAnswer, Paused and Err is meaningful, selected by Kind.
type Outcome struct {
	Kind        OutcomeKind
	FinalAnswer string
	Paused      *PausedState
	Err         error
}

// PausedState is everything needed to continue a loop that ran out of
// iterations.
type PausedState struct {
	SessionID    string                `json:"session_id"`
	ExecutionID  string                `json:"execution_id"`
	StageName    string                `json:"stage_name,omitempty"`
	Iteration    int                   `json:"iteration"`
	Conversation []ConversationMessage `json:"conversation"`
}

// OutcomeCompleted wraps a final answer.
func OutcomeCompleted(answer string) *Outcome {
	return &Outcome{Kind: KindCompleted, FinalAnswer: answer}
}

// OutcomePaused wraps the state of a loop that can be resumed.
func OutcomePaused(state *PausedState) *Outcome {
	return &Outcome{Kind: KindPaused, Paused: state}
}

// OutcomeFailed wraps the error that ended the loop.
func OutcomeFailed(err error) *Outcome {
	return &Outcome{Kind: KindFailed, Err: err}
}
