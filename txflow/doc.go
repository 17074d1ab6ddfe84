// Package txflow provides shared context plumbing for the transaction
// management subpackages.
//
// The package carries request-scoped facilities (logger, tracer, correlation
// id) in a single context value so the transaction engine and its resource
// adapters observe consistent telemetry without global state.
//
// Typical usage at the edge of a call chain:
//
//	ctx = txflow.ContextWithLogger(ctx, logger)
//	ctx = txflow.ContextWithTracer(ctx, tracer)
//	ctx = txflow.ContextWithHeaderID(ctx, requestID)
//
// The transaction engine itself lives in the transaction subpackage; database
// integrations live in postgres and transaction/postgres.
package txflow
