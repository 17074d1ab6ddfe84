// Package transaction implements propagation-aware transaction management.
//
// Core flow:
//   - Resolve maps (current transaction, propagation) to a Decision using a
//     fixed decision table.
//   - Manager.Execute wraps a unit of work, drives the resulting execution
//     frame through its lifecycle, and delegates begin/commit/rollback and
//     savepoint operations to a Resource.
//   - The active *Transaction travels in context.Context; nesting and
//     suspension follow call-stack discipline through derived contexts.
//
// The package enforces deterministic behavior using typed errors and a
// validated frame state machine.
package transaction
