package access

import (
	"context"
	"time"
)

// RuleSource provides an ordered list of authorization rules. The compiler
// treats the order as the source's declaration order; it is preserved for
// specificity tie-breaks.
type RuleSource interface {
	// Kind identifies the source variant.
	Kind() SourceKind
	// ListRules returns the source's rules in declaration order.
	ListRules(ctx context.Context) ([]Rule, error)
	// SupportsLiveInvalidation reports whether the source's backing data
	// can change after startup.
	SupportsLiveInvalidation() bool
}

// RequestmapEntry is a stored dynamic rule. The Access slice holds either
// authority tokens or a single expression string, untranslated.
type RequestmapEntry struct {
	ID         string
	Pattern    string
	Access     []string
	HTTPMethod string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RequestmapStore persists dynamic rule entries. Implementations must be
// safe for concurrent use. The store does not detect external changes:
// callers must invalidate the rule cache after any committed mutation.
type RequestmapStore interface {
	// ListEntries returns all entries in a stable order.
	ListEntries(ctx context.Context) ([]RequestmapEntry, error)
	// GetEntry returns an entry by ID, or ErrEntryNotFound.
	GetEntry(ctx context.Context, id string) (*RequestmapEntry, error)
	// SaveEntry creates or updates an entry, assigning an ID when empty.
	SaveEntry(ctx context.Context, e *RequestmapEntry) error
	// DeleteEntry removes an entry by ID, or returns ErrEntryNotFound.
	DeleteEntry(ctx context.Context, id string) error
}

// ExpressionEvaluator decides whether a subject satisfies an access
// requirement. Expression interpretation, including the reserved-token
// equivalents, lives behind this port rather than in the core.
type ExpressionEvaluator interface {
	Satisfies(ctx context.Context, req AccessExpr, sub Subject) (bool, error)
}
