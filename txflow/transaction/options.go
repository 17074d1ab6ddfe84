package transaction

import (
	"database/sql"
	"strings"
	"time"
)

// Definition declares the transactional requirements of one unit of work.
type Definition struct {
	// Name labels the unit of work in logs and spans.
	Name string
	// Propagation declares how the unit of work relates to an existing
	// transaction. Defaults to PropagationRequired.
	Propagation Propagation
	// Isolation is the isolation level requested from the resource.
	Isolation sql.IsolationLevel
	// ReadOnly requests a read-only transaction from the resource.
	ReadOnly bool
	// Timeout is carried on the transaction and enforced by the resource.
	Timeout time.Duration
	// Classifier maps unit-of-work failures to rollback decisions. Defaults
	// to RollbackOnAll.
	Classifier RollbackClassifier
}

// DefaultDefinition returns the baseline definition.
func DefaultDefinition() Definition {
	return Definition{
		Propagation: PropagationDefault,
		Isolation:   sql.LevelDefault,
		Classifier:  RollbackOnAll(),
	}
}

func (def *Definition) normalize() {
	if def.Classifier == nil {
		def.Classifier = RollbackOnAll()
	}

	def.Name = strings.TrimSpace(def.Name)
}

// Option mutates the definition for a single Execute invocation.
type Option func(*Definition)

// WithName labels the unit of work for telemetry.
func WithName(name string) Option {
	return func(def *Definition) {
		def.Name = name
	}
}

// WithPropagation sets the propagation behavior.
func WithPropagation(propagation Propagation) Option {
	return func(def *Definition) {
		def.Propagation = propagation
	}
}

// WithIsolation sets the isolation level requested from the resource.
func WithIsolation(isolation sql.IsolationLevel) Option {
	return func(def *Definition) {
		def.Isolation = isolation
	}
}

// WithReadOnly requests a read-only transaction.
func WithReadOnly(readOnly bool) Option {
	return func(def *Definition) {
		def.ReadOnly = readOnly
	}
}

// WithTimeout sets the timeout carried on the transaction.
func WithTimeout(timeout time.Duration) Option {
	return func(def *Definition) {
		if timeout > 0 {
			def.Timeout = timeout
		}
	}
}

// WithRollbackClassifier sets the rollback classifier. Passing nil restores
// the default classifier.
func WithRollbackClassifier(classifier RollbackClassifier) Option {
	return func(def *Definition) {
		def.Classifier = classifier
	}
}

// WithNoRollbackOn exempts declared failures from triggering rollback.
func WithNoRollbackOn(declared ...error) Option {
	return func(def *Definition) {
		def.Classifier = NoRollbackOn(declared...)
	}
}
