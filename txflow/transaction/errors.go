package transaction

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTransaction indicates a MANDATORY unit of work was invoked with no
	// active transaction.
	ErrNoTransaction = errors.New("no transaction present")
	// ErrTransactionPresent indicates a NEVER unit of work was invoked while a
	// transaction was active.
	ErrTransactionPresent = errors.New("transaction present but not allowed")
	// ErrRollbackOnlyCommit indicates a commit attempt on a rollback-only
	// transaction was converted into a rollback.
	ErrRollbackOnlyCommit = errors.New("transaction marked rollback-only; commit converted to rollback")
	// ErrPropagationInvalid indicates an unknown propagation value.
	ErrPropagationInvalid = errors.New("invalid propagation")
	// ErrResourceRequired indicates the manager was built without a resource.
	ErrResourceRequired = errors.New("transactional resource is required")
	// ErrUnitOfWorkRequired indicates Execute was called with a nil unit of work.
	ErrUnitOfWorkRequired = errors.New("unit of work is required")
	// ErrFrameTransitionInvalid indicates an illegal frame state transition.
	ErrFrameTransitionInvalid = errors.New("invalid frame state transition")
	// ErrSuspendedRestoreFailed indicates the suspended transaction could not
	// be restored as current when its frame exited. Sibling operations would
	// otherwise run under a wrong context, so this is fatal.
	ErrSuspendedRestoreFailed = errors.New("failed to restore suspended transaction")
)

// PropagationError reports a propagation policy violation. It is raised
// before any resource operation is attempted, so the caller never observes a
// half-initialized transaction.
type PropagationError struct {
	// Propagation is the policy that was violated.
	Propagation Propagation
	// TransactionPresent reports whether a transaction was unexpectedly
	// present (true) or unexpectedly absent (false).
	TransactionPresent bool
	// Err is the sentinel describing the violation.
	Err error
}

// Error returns the formatted propagation violation string.
func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation %s rejected: %v", e.Propagation, e.Err)
}

// Unwrap exposes the underlying sentinel for errors.Is.
func (e *PropagationError) Unwrap() error {
	return e.Err
}

// ResourceOp identifies the resource operation that failed.
type ResourceOp string

const (
	ResourceOpBegin               ResourceOp = "begin"
	ResourceOpCommit              ResourceOp = "commit"
	ResourceOpRollback            ResourceOp = "rollback"
	ResourceOpCreateSavepoint     ResourceOp = "create_savepoint"
	ResourceOpRollbackToSavepoint ResourceOp = "rollback_to_savepoint"
)

// ResourceError reports a failure from the transactional resource at a frame
// boundary. Resource failures force the frame into ROLLED_BACK and are never
// swallowed.
type ResourceError struct {
	Op  ResourceOp
	Err error
}

// Error returns the formatted resource failure string.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the resource's own error for errors.Is/As.
func (e *ResourceError) Unwrap() error {
	return e.Err
}
