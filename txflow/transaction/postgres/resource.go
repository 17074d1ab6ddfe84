package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/LerianStudio/lib-txflow/v2/txflow/log"
	libPostgres "github.com/LerianStudio/lib-txflow/v2/txflow/postgres"
	"github.com/LerianStudio/lib-txflow/v2/txflow/transaction"
)

var (
	// ErrConnectionRequired indicates the resource was built without a
	// connection hub.
	ErrConnectionRequired = errors.New("postgres connection is required")
	// ErrForeignHandle indicates a handle not created by this resource.
	ErrForeignHandle = errors.New("handle was not created by this resource")
	// ErrForeignSavepoint indicates a savepoint not created by this resource.
	ErrForeignSavepoint = errors.New("savepoint was not created by this resource")
	// ErrNoPrimaryDB indicates the resolver exposes no primary database.
	ErrNoPrimaryDB = errors.New("no primary database available")
)

// Savepoint identifiers are generated internally; the pattern guards against
// statement injection if a caller fabricates one.
var savepointNamePattern = regexp.MustCompile(`^txflow_sp_[0-9]+$`)

// Resource adapts a PostgreSQL connection to the transaction.Resource
// contract. Nested segments map to SAVEPOINT / ROLLBACK TO SAVEPOINT.
type Resource struct {
	connection   *libPostgres.PostgresConnection
	logger       log.Logger
	savepointSeq atomic.Uint64
}

// Compile-time assertion: *Resource implements transaction.Resource.
var _ transaction.Resource = (*Resource)(nil)

// NewResource creates a PostgreSQL-backed transactional resource.
func NewResource(connection *libPostgres.PostgresConnection, logger log.Logger) (*Resource, error) {
	if connection == nil {
		return nil, ErrConnectionRequired
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &Resource{connection: connection, logger: logger}, nil
}

// Begin starts a resource-level transaction with the declared attributes.
// A declared timeout is enforced by postgres via statement_timeout; the
// engine only transports the value.
func (r *Resource) Begin(ctx context.Context, opts transaction.TxOptions) (transaction.Handle, error) {
	db, err := r.primaryDB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		statement := fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.Timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.SafeError(r.logger, ctx, "failed to roll back after timeout setup failure", rbErr)
			}

			return nil, fmt.Errorf("apply statement timeout: %w", err)
		}
	}

	return tx, nil
}

// Commit commits the resource-level transaction.
func (r *Resource) Commit(ctx context.Context, handle transaction.Handle) error {
	tx, err := sqlTx(handle)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Rollback rolls back the resource-level transaction.
func (r *Resource) Rollback(ctx context.Context, handle transaction.Handle) error {
	tx, err := sqlTx(handle)
	if err != nil {
		return err
	}

	return tx.Rollback()
}

// CreateSavepoint creates a uniquely named savepoint inside the transaction.
func (r *Resource) CreateSavepoint(ctx context.Context, handle transaction.Handle) (transaction.Savepoint, error) {
	tx, err := sqlTx(handle)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("txflow_sp_%d", r.savepointSeq.Add(1))

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("create savepoint %s: %w", name, err)
	}

	return name, nil
}

// RollbackToSavepoint undoes work performed after the savepoint without
// affecting the enclosing transaction.
func (r *Resource) RollbackToSavepoint(ctx context.Context, handle transaction.Handle, savepoint transaction.Savepoint) error {
	tx, err := sqlTx(handle)
	if err != nil {
		return err
	}

	name, ok := savepoint.(string)
	if !ok || !savepointNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %v", ErrForeignSavepoint, savepoint)
	}

	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}

	return nil
}

// primaryDB resolves the raw primary database. Transactions always run on the
// primary; the replica is read-only.
func (r *Resource) primaryDB(ctx context.Context) (*sql.DB, error) {
	resolver, err := r.connection.GetDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire database: %w", err)
	}

	primaryDBs := resolver.PrimaryDBs()
	if len(primaryDBs) == 0 || primaryDBs[0] == nil {
		return nil, ErrNoPrimaryDB
	}

	return primaryDBs[0], nil
}

func sqlTx(handle transaction.Handle) (*sql.Tx, error) {
	tx, ok := handle.(*sql.Tx)
	if !ok || tx == nil {
		return nil, fmt.Errorf("%w: %T", ErrForeignHandle, handle)
	}

	return tx, nil
}
