//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/LerianStudio/lib-txflow/v2/txflow/log"
	libPostgres "github.com/LerianStudio/lib-txflow/v2/txflow/postgres"
	"github.com/LerianStudio/lib-txflow/v2/txflow/transaction"
)

func setupConnection(t *testing.T) *libPostgres.PostgresConnection {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrations := t.TempDir()
	up := "CREATE TABLE IF NOT EXISTS ledger_entries (id SERIAL PRIMARY KEY, ref TEXT NOT NULL);\n"
	down := "DROP TABLE IF EXISTS ledger_entries;\n"
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "000001_init.up.sql"), []byte(up), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(migrations, "000001_init.down.sql"), []byte(down), 0o600))

	pc := &libPostgres.PostgresConnection{
		ConnectionStringPrimary: dsn,
		ConnectionStringReplica: dsn,
		PrimaryDBName:           "testdb",
		Component:               "txflow",
		MigrationsPath:          migrations,
		Logger:                  log.NewNop(),
	}

	require.NoError(t, pc.Connect(ctx))
	t.Cleanup(func() { _ = pc.Close() })

	return pc
}

func setupManager(t *testing.T) (*transaction.Manager, *libPostgres.PostgresConnection) {
	t.Helper()

	pc := setupConnection(t)

	resource, err := NewResource(pc, log.NewNop())
	require.NoError(t, err)

	manager, err := transaction.NewManager(resource, log.NewNop(), nil)
	require.NoError(t, err)

	return manager, pc
}

func insertRef(ctx context.Context, ref string) error {
	tx, ok := transaction.FromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}

	sqlTx, ok := tx.Handle().(*sql.Tx)
	if !ok {
		return errors.New("unexpected handle type")
	}

	_, err := sqlTx.ExecContext(ctx, "INSERT INTO ledger_entries (ref) VALUES ($1)", ref)

	return err
}

func countRefs(t *testing.T, pc *libPostgres.PostgresConnection, ref string) int {
	t.Helper()

	ctx := context.Background()

	db, err := pc.GetDB(ctx)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries WHERE ref = $1", ref).Scan(&count))

	return count
}

func TestIntegration_Resource_CommitPersists(t *testing.T) {
	manager, pc := setupManager(t)
	ctx := context.Background()

	err := manager.Execute(ctx, func(ctx context.Context) error {
		return insertRef(ctx, "committed")
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countRefs(t, pc, "committed"))
}

func TestIntegration_Resource_RollbackDiscards(t *testing.T) {
	manager, pc := setupManager(t)
	ctx := context.Background()

	failure := errors.New("business failure")

	err := manager.Execute(ctx, func(ctx context.Context) error {
		if err := insertRef(ctx, "discarded"); err != nil {
			return err
		}

		return failure
	})

	require.ErrorIs(t, err, failure)
	assert.Zero(t, countRefs(t, pc, "discarded"))
}

func TestIntegration_Resource_NestedSavepointPartialRollback(t *testing.T) {
	manager, pc := setupManager(t)
	ctx := context.Background()

	nestedFailure := errors.New("nested failure")

	err := manager.Execute(ctx, func(ctx context.Context) error {
		if err := insertRef(ctx, "outer"); err != nil {
			return err
		}

		innerErr := manager.Execute(ctx, func(ctx context.Context) error {
			if err := insertRef(ctx, "nested"); err != nil {
				return err
			}

			return nestedFailure
		}, transaction.WithPropagation(transaction.PropagationNested))

		require.ErrorIs(t, innerErr, nestedFailure)

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countRefs(t, pc, "outer"))
	assert.Zero(t, countRefs(t, pc, "nested"))
}

func TestIntegration_Resource_RequiresNewCommitsIndependently(t *testing.T) {
	manager, pc := setupManager(t)
	ctx := context.Background()

	outerFailure := errors.New("outer failure")

	err := manager.Execute(ctx, func(ctx context.Context) error {
		innerErr := manager.Execute(ctx, func(ctx context.Context) error {
			return insertRef(ctx, "audit")
		}, transaction.WithPropagation(transaction.PropagationRequiresNew))
		require.NoError(t, innerErr)

		if err := insertRef(ctx, "payload"); err != nil {
			return err
		}

		return outerFailure
	})

	require.ErrorIs(t, err, outerFailure)
	// The inner REQUIRES_NEW transaction survives the outer rollback.
	assert.Equal(t, 1, countRefs(t, pc, "audit"))
	assert.Zero(t, countRefs(t, pc, "payload"))
}

func TestIntegration_Resource_RollbackOnlyConversion(t *testing.T) {
	manager, pc := setupManager(t)
	ctx := context.Background()

	err := manager.Execute(ctx, func(ctx context.Context) error {
		if err := insertRef(ctx, "poisoned"); err != nil {
			return err
		}

		tx, _ := transaction.FromContext(ctx)
		tx.MarkRollbackOnly()

		return nil
	})

	require.ErrorIs(t, err, transaction.ErrRollbackOnlyCommit)
	assert.Zero(t, countRefs(t, pc, "poisoned"))
}

func TestIntegration_Resource_StatementTimeout(t *testing.T) {
	manager, _ := setupManager(t)
	ctx := context.Background()

	err := manager.Execute(ctx, func(ctx context.Context) error {
		tx, _ := transaction.FromContext(ctx)
		sqlTx := tx.Handle().(*sql.Tx)

		_, execErr := sqlTx.ExecContext(ctx, "SELECT pg_sleep(2)")

		return execErr
	}, transaction.WithTimeout(100*time.Millisecond))

	// statement_timeout cancels the sleep and the frame rolls back.
	require.Error(t, err)
}

func TestIntegration_Resource_ForeignSavepoint(t *testing.T) {
	pc := setupConnection(t)

	resource, err := NewResource(pc, log.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	handle, err := resource.Begin(ctx, transaction.TxOptions{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = resource.Rollback(ctx, handle) })

	err = resource.RollbackToSavepoint(ctx, handle, "evil; DROP TABLE ledger_entries")
	require.ErrorIs(t, err, ErrForeignSavepoint)

	savepoint, err := resource.CreateSavepoint(ctx, handle)
	require.NoError(t, err)
	require.NoError(t, resource.RollbackToSavepoint(ctx, handle, savepoint))
}
