// Package log defines the structured logging interface and typed logging
// fields used across lib-txflow.
//
// Adapters (such as the zap package) implement Logger so the transaction
// engine and resource adapters stay backend-agnostic.
package log
