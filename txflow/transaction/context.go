package transaction

import "context"

type transactionContextKey struct{}

// FromContext returns the transaction current in ctx, if any.
//
// The engine derives child contexts on create/suspend, so the invariant that
// a suspended transaction is restored exactly once holds structurally: the
// caller's context still carries the suspended transaction untouched when the
// inner frame exits.
func FromContext(ctx context.Context) (*Transaction, bool) {
	if ctx == nil {
		return nil, false
	}

	tx, ok := ctx.Value(transactionContextKey{}).(*Transaction)
	if !ok || tx == nil {
		return nil, false
	}

	return tx, true
}

// ContextWithTransaction returns a context in which tx is current.
func ContextWithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// ContextWithoutTransaction returns a context with no current transaction,
// shadowing any transaction carried by ctx.
func ContextWithoutTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, (*Transaction)(nil))
}
