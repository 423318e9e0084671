package access

import (
	"errors"
	"fmt"
)

// Error types for rule sources and stores.
var (
	// ErrEntryNotFound is returned by stores when no entry has the given ID.
	ErrEntryNotFound = errors.New("requestmap entry not found")
	// ErrSourceUnavailable marks a failure to reach a source's backing
	// store while building a rule snapshot. The caller decides the
	// fail-open/fail-closed policy; the core never falls back to a stale
	// or empty rule list silently.
	ErrSourceUnavailable = errors.New("rule source unavailable")
)

// SourceUnavailableError reports that a rule source's backing store could
// not be reached. Matches ErrSourceUnavailable via errors.Is.
type SourceUnavailableError struct {
	Kind SourceKind
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%s source unavailable: %v", e.Kind, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}
