//go:build unit

package transaction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropagationError(t *testing.T) {
	t.Parallel()

	err := &PropagationError{
		Propagation:        PropagationMandatory,
		TransactionPresent: false,
		Err:                ErrNoTransaction,
	}

	require.ErrorIs(t, err, ErrNoTransaction)
	require.Contains(t, err.Error(), "MANDATORY")
	require.Contains(t, err.Error(), ErrNoTransaction.Error())
}

func TestResourceError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := &ResourceError{Op: ResourceOpCommit, Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "commit")
	require.Contains(t, err.Error(), cause.Error())
}
