package core

// State is a step of the per-submission state machine:
//
//	Idle -> Validating -> Submitting -> AwaitingBody -> Resolved
//
// Validation failures fall back to Idle; transport and parse failures resolve
// as failed.
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateSubmitting   State = "submitting"
	StateAwaitingBody State = "awaiting_body"
	StateResolved     State = "resolved"
)

// Event describes one transition. Err is set on failing transitions and
// Success only on the final Resolved event.
type Event struct {
	ID      string
	Tool    string
	From    State
	To      State
	Success bool
	Err     *StructuredError
}

type submission struct {
	id       string
	tool     string
	state    State
	observer Observer
}

func (s *submission) to(next State, err *StructuredError) {
	prev := s.state
	s.state = next
	if s.observer == nil {
		return
	}
	s.observer.Transition(Event{
		ID:      s.id,
		Tool:    s.tool,
		From:    prev,
		To:      next,
		Success: next == StateResolved && err == nil,
		Err:     err,
	})
}
