package transaction

import "fmt"

// Frame represents one nested invocation of a unit of work. It holds the
// transaction active for the frame and, when the frame suspended its caller's
// transaction, a reference used to verify restoration on exit.
type Frame struct {
	decision    Decision
	state       FrameState
	disposition FrameState
	tx          *Transaction
	suspended   *Transaction
}

func newFrame(decision Decision) *Frame {
	return &Frame{decision: decision, state: StateEntered}
}

// Decision returns the propagation decision that shaped this frame.
func (f *Frame) Decision() Decision {
	if f == nil {
		return Decision{}
	}

	return f.decision
}

// State returns the frame's current lifecycle state.
func (f *Frame) State() FrameState {
	if f == nil {
		return ""
	}

	return f.state
}

// Disposition returns the frame's finalization state: COMMITTED, ROLLED_BACK,
// or REJECTED when one applies, otherwise EXITED.
func (f *Frame) Disposition() FrameState {
	if f == nil || f.disposition == "" {
		return StateExited
	}

	return f.disposition
}

// Transaction returns the transaction active for this frame, or nil for
// frames running non-transactionally.
func (f *Frame) Transaction() *Transaction {
	if f == nil {
		return nil
	}

	return f.tx
}

// Suspended returns the transaction this frame detached from current
// execution, or nil. The engine restores it when the frame exits, on every
// exit path.
func (f *Frame) Suspended() *Transaction {
	if f == nil {
		return nil
	}

	return f.suspended
}

// transition advances the frame state, validating against the lifecycle
// table. Finalization states are recorded as the frame's disposition.
func (f *Frame) transition(next FrameState) error {
	if !f.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrFrameTransitionInvalid, f.state, next)
	}

	f.state = next

	switch next {
	case StateCommitted, StateRolledBack, StateRejected:
		f.disposition = next
	}

	return nil
}
