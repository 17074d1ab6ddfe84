package transaction

// FrameState represents a valid execution frame lifecycle state.
type FrameState string

const (
	// StateEntered is the initial state of every frame.
	StateEntered FrameState = "ENTERED"
	// StateJoined marks a frame running inside the caller's transaction.
	StateJoined FrameState = "JOINED"
	// StateCreated marks a frame running inside a freshly begun transaction.
	StateCreated FrameState = "CREATED"
	// StateNested marks a frame running inside a savepoint-bounded segment.
	StateNested FrameState = "NESTED"
	// StateSuspendedAndRunning marks a frame running non-transactionally with
	// the caller's transaction suspended.
	StateSuspendedAndRunning FrameState = "SUSPENDED_AND_RUNNING"
	// StateRunningWithoutTx marks a frame running non-transactionally with no
	// transaction to suspend.
	StateRunningWithoutTx FrameState = "RUNNING_WITHOUT_TX"
	// StateRejected marks a frame refused by propagation policy. It exits
	// directly without a commit/rollback phase.
	StateRejected FrameState = "REJECTED"
	// StateExiting marks a frame whose unit of work has returned.
	StateExiting FrameState = "EXITING"
	// StateCommitted marks a frame whose transaction committed.
	StateCommitted FrameState = "COMMITTED"
	// StateRolledBack marks a frame whose transaction rolled back.
	StateRolledBack FrameState = "ROLLED_BACK"
	// StateRestoredParent marks a frame that restored a suspended transaction
	// as current on exit.
	StateRestoredParent FrameState = "RESTORED_PARENT"
	// StateExited is the terminal state of every frame.
	StateExited FrameState = "EXITED"
)

// IsValid reports whether the state is part of the frame lifecycle.
func (state FrameState) IsValid() bool {
	switch state {
	case StateEntered, StateJoined, StateCreated, StateNested,
		StateSuspendedAndRunning, StateRunningWithoutTx, StateRejected,
		StateExiting, StateCommitted, StateRolledBack, StateRestoredParent,
		StateExited:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed.
func (state FrameState) IsTerminal() bool {
	return state == StateExited
}

// CanTransitionTo reports whether a transition from state to next is allowed.
func (state FrameState) CanTransitionTo(next FrameState) bool {
	switch state {
	case StateEntered:
		switch next {
		case StateJoined, StateCreated, StateNested,
			StateSuspendedAndRunning, StateRunningWithoutTx, StateRejected:
			return true
		default:
			return false
		}
	case StateJoined, StateCreated, StateNested,
		StateSuspendedAndRunning, StateRunningWithoutTx:
		return next == StateExiting
	case StateRejected:
		return next == StateExited
	case StateExiting:
		switch next {
		case StateCommitted, StateRolledBack, StateRestoredParent, StateExited:
			return true
		default:
			return false
		}
	case StateCommitted, StateRolledBack:
		return next == StateRestoredParent || next == StateExited
	case StateRestoredParent:
		return next == StateExited
	case StateExited:
		return false
	default:
		return false
	}
}

func (state FrameState) String() string {
	return string(state)
}
