package transaction

import "errors"

// RollbackClassifier determines whether a unit-of-work failure triggers a
// rollback. The default behavior rolls back on every failure; declared
// failures can be exempted.
type RollbackClassifier interface {
	RollbackOn(err error) bool
}

// RollbackClassifierFunc adapts a function to RollbackClassifier.
type RollbackClassifierFunc func(err error) bool

func (fn RollbackClassifierFunc) RollbackOn(err error) bool {
	if fn == nil {
		return err != nil
	}

	return fn(err)
}

// RollbackOnAll returns the default classifier: every failure rolls back.
//
//nolint:ireturn
func RollbackOnAll() RollbackClassifier {
	return RollbackClassifierFunc(func(err error) bool {
		return err != nil
	})
}

// NoRollbackOn returns a classifier that rolls back on every failure except
// those matching (errors.Is) one of the declared errors.
//
//nolint:ireturn
func NoRollbackOn(declared ...error) RollbackClassifier {
	return Rules{NoRollbackOn: declared}
}

// Rules is a rollback classifier built from explicit match lists. A failure
// matching RollbackOn always rolls back; otherwise a failure matching
// NoRollbackOn does not; any other failure rolls back.
type Rules struct {
	RollbackOn   []error
	NoRollbackOn []error
}

// RollbackOn implements RollbackClassifier.
func (r Rules) RollbackOn(err error) bool {
	if err == nil {
		return false
	}

	if matchesAny(err, r.RollbackOn) {
		return true
	}

	if matchesAny(err, r.NoRollbackOn) {
		return false
	}

	return true
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if target == nil {
			continue
		}

		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
