package transaction

import "fmt"

// DecisionKind names the transactional context a unit of work executes under.
type DecisionKind uint8

const (
	// DecisionJoin executes inside the caller's active transaction.
	DecisionJoin DecisionKind = iota
	// DecisionCreateNew executes inside a freshly begun transaction.
	DecisionCreateNew
	// DecisionCreateNested executes inside a savepoint-bounded segment of the
	// caller's active transaction.
	DecisionCreateNested
	// DecisionRunWithoutTransaction executes non-transactionally.
	DecisionRunWithoutTransaction
	// DecisionReject refuses the invocation before it runs.
	DecisionReject
)

// String returns the decision kind name.
func (k DecisionKind) String() string {
	switch k {
	case DecisionJoin:
		return "join"
	case DecisionCreateNew:
		return "create_new"
	case DecisionCreateNested:
		return "create_nested"
	case DecisionRunWithoutTransaction:
		return "run_without_transaction"
	case DecisionReject:
		return "reject"
	default:
		return fmt.Sprintf("decision(%d)", uint8(k))
	}
}

// Decision is the outcome of resolving a propagation against the current
// transactional state.
type Decision struct {
	Kind DecisionKind
	// Suspend reports whether the current transaction must be detached before
	// the unit of work runs and restored when its frame exits.
	Suspend bool
	// Reason carries the violation sentinel for DecisionReject.
	Reason error
}

// Resolve maps (current transaction, propagation) to a Decision.
//
// The table is fixed:
//
//	propagation     tx present                      tx absent
//	REQUIRED        join                            create new
//	REQUIRES_NEW    suspend current, create new     create new
//	MANDATORY       join                            reject
//	NEVER           reject                          run without tx
//	SUPPORTS        join                            run without tx
//	NOT_SUPPORTED   suspend current, run without    run without tx
//	NESTED          create nested                   create new
func Resolve(current *Transaction, propagation Propagation) Decision {
	present := current != nil

	switch propagation {
	case PropagationRequired:
		if present {
			return Decision{Kind: DecisionJoin}
		}

		return Decision{Kind: DecisionCreateNew}
	case PropagationRequiresNew:
		return Decision{Kind: DecisionCreateNew, Suspend: present}
	case PropagationMandatory:
		if present {
			return Decision{Kind: DecisionJoin}
		}

		return Decision{Kind: DecisionReject, Reason: ErrNoTransaction}
	case PropagationNever:
		if present {
			return Decision{Kind: DecisionReject, Reason: ErrTransactionPresent}
		}

		return Decision{Kind: DecisionRunWithoutTransaction}
	case PropagationSupports:
		if present {
			return Decision{Kind: DecisionJoin}
		}

		return Decision{Kind: DecisionRunWithoutTransaction}
	case PropagationNotSupported:
		return Decision{Kind: DecisionRunWithoutTransaction, Suspend: present}
	case PropagationNested:
		if present {
			return Decision{Kind: DecisionCreateNested}
		}

		return Decision{Kind: DecisionCreateNew}
	default:
		return Decision{
			Kind:   DecisionReject,
			Reason: fmt.Errorf("%w: %s", ErrPropagationInvalid, propagation),
		}
	}
}
