package transaction

import (
	"fmt"
	"strings"
)

// Propagation declares how a unit of work's transactional requirement relates
// to an existing transaction.
type Propagation uint8

const (
	// PropagationRequired joins the current transaction, creating one when
	// absent. This is the default behavior.
	PropagationRequired Propagation = iota
	// PropagationRequiresNew suspends any current transaction and always
	// creates a new one.
	PropagationRequiresNew
	// PropagationMandatory joins the current transaction and rejects the
	// invocation when none exists.
	PropagationMandatory
	// PropagationNever rejects the invocation when a transaction exists and
	// otherwise runs non-transactionally.
	PropagationNever
	// PropagationSupports joins the current transaction when present and
	// otherwise runs non-transactionally.
	PropagationSupports
	// PropagationNotSupported suspends any current transaction and runs
	// non-transactionally.
	PropagationNotSupported
	// PropagationNested creates a savepoint-bounded nested transaction inside
	// the current one, or a new transaction when none exists.
	PropagationNested
)

// PropagationDefault is the behavior applied when no propagation is declared:
// join the current transaction, creating one when absent.
const PropagationDefault = PropagationRequired

// String returns the canonical name of the propagation.
func (p Propagation) String() string {
	switch p {
	case PropagationRequired:
		return "REQUIRED"
	case PropagationRequiresNew:
		return "REQUIRES_NEW"
	case PropagationMandatory:
		return "MANDATORY"
	case PropagationNever:
		return "NEVER"
	case PropagationSupports:
		return "SUPPORTS"
	case PropagationNotSupported:
		return "NOT_SUPPORTED"
	case PropagationNested:
		return "NESTED"
	default:
		return fmt.Sprintf("PROPAGATION(%d)", uint8(p))
	}
}

// IsValid reports whether p names a known propagation.
func (p Propagation) IsValid() bool {
	return p <= PropagationNested
}

// ParsePropagation validates and converts a raw string propagation name.
func ParsePropagation(raw string) (Propagation, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "REQUIRED", "":
		return PropagationRequired, nil
	case "REQUIRES_NEW":
		return PropagationRequiresNew, nil
	case "MANDATORY":
		return PropagationMandatory, nil
	case "NEVER":
		return PropagationNever, nil
	case "SUPPORTS":
		return PropagationSupports, nil
	case "NOT_SUPPORTED":
		return PropagationNotSupported, nil
	case "NESTED":
		return PropagationNested, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrPropagationInvalid, raw)
	}
}
