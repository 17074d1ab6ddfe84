package transaction

import (
	"context"
	"database/sql"
	"time"
)

// Handle is an opaque reference to a resource-level transaction.
type Handle = any

// Savepoint is an opaque resource-level marker allowing partial rollback of a
// nested segment without affecting its parent.
type Savepoint = any

// TxOptions carries the declared attributes a resource applies when beginning
// a transaction. Timeout enforcement is the resource's responsibility; the
// engine only transports the value.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
	Timeout   time.Duration
}

// Resource is the collaborator contract with a transactional backend, such as
// a database connection. The engine calls these at frame-boundary transitions
// only; it performs no I/O of its own.
type Resource interface {
	Begin(ctx context.Context, opts TxOptions) (Handle, error)
	Commit(ctx context.Context, handle Handle) error
	Rollback(ctx context.Context, handle Handle) error
	CreateSavepoint(ctx context.Context, handle Handle) (Savepoint, error)
	RollbackToSavepoint(ctx context.Context, handle Handle, savepoint Savepoint) error
}
