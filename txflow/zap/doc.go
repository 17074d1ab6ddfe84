// Package zap adapts go.uber.org/zap to the txflow log.Logger interface.
//
// The adapter is strict: it exposes only leveled structured logging, and it
// appends trace_id/span_id fields when the context carries an active
// OpenTelemetry span so log lines correlate with distributed traces.
package zap
