package transaction

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transaction represents one active transaction within a logical call chain.
//
// A Transaction is created when a frame begins a new transaction or a nested
// savepoint segment, and is finished (committed or rolled back) when that
// frame completes. At most one Transaction is current at any instant within a
// call chain; the current one travels in context.Context.
type Transaction struct {
	// ID uniquely identifies the transaction.
	ID uuid.UUID
	// Name is the declared unit-of-work name, used for telemetry only.
	Name string
	// Isolation is the declared isolation level, enforced by the resource.
	Isolation sql.IsolationLevel
	// ReadOnly marks the transaction as read-only.
	ReadOnly bool
	// Timeout is carried on the transaction and enforced by the transactional
	// resource, not by the engine.
	Timeout time.Duration

	handle    Handle
	savepoint Savepoint
	parent    *Transaction

	mu           sync.Mutex
	rollbackOnly bool
}

// MarkRollbackOnly marks the transaction such that any commit attempt must be
// converted into a rollback. Marking is irreversible.
func (t *Transaction) MarkRollbackOnly() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollbackOnly = true
}

// IsRollbackOnly reports whether the transaction must roll back on completion.
func (t *Transaction) IsRollbackOnly() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.rollbackOnly
}

// Handle returns the resource handle this transaction runs on. Nested
// segments share their parent's handle.
func (t *Transaction) Handle() Handle {
	if t == nil {
		return nil
	}

	return t.handle
}

// Parent returns the enclosing transaction for a nested segment, or nil.
func (t *Transaction) Parent() *Transaction {
	if t == nil {
		return nil
	}

	return t.parent
}

// Nested reports whether the transaction is a savepoint-bounded segment.
func (t *Transaction) Nested() bool {
	return t != nil && t.parent != nil
}
