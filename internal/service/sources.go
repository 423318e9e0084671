// Package service contains the policy resolution services: rule sources,
// the rule compiler/cache, and the resolver facade.
package service

import (
	"context"
	"strings"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// AnnotationSource is the static-declaration rule source. Its rules are
// derived from structural metadata by an external producer (one rule per
// guarded path, case-correct) and are read-only after startup. Patterns are
// NOT lowercased: they were normalized structurally, not parsed from free
// text.
type AnnotationSource struct {
	rules []access.Rule
}

// NewAnnotationSource creates a source over an already-normalized rule list.
func NewAnnotationSource(rules []access.Rule) *AnnotationSource {
	owned := make([]access.Rule, len(rules))
	copy(owned, rules)
	for i := range owned {
		owned[i].Source = access.SourceAnnotation
		owned[i].HTTPMethod = strings.ToUpper(owned[i].HTTPMethod)
	}
	return &AnnotationSource{rules: owned}
}

func (s *AnnotationSource) Kind() access.SourceKind { return access.SourceAnnotation }

func (s *AnnotationSource) ListRules(ctx context.Context) ([]access.Rule, error) {
	out := make([]access.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *AnnotationSource) SupportsLiveInvalidation() bool { return false }

// InterceptMapSource is the configuration-map rule source: rules parsed
// from configured {pattern, access, httpMethod} entries. Patterns are
// lowercased; the access value is normalized from string-or-list form.
type InterceptMapSource struct {
	rules []access.Rule
}

// NewInterceptMapSource creates a source from configuration entries,
// preserving their declared order.
func NewInterceptMapSource(entries []access.RuleEntry) *InterceptMapSource {
	rules := make([]access.Rule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, entryToRule(e, access.SourceInterceptMap))
	}
	return &InterceptMapSource{rules: rules}
}

func (s *InterceptMapSource) Kind() access.SourceKind { return access.SourceInterceptMap }

func (s *InterceptMapSource) ListRules(ctx context.Context) ([]access.Rule, error) {
	out := make([]access.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *InterceptMapSource) SupportsLiveInvalidation() bool { return false }

// RequestmapSource is the dynamic-store rule source. Rules are loaded from
// the mutable backing store on every snapshot build; the store's caller is
// responsible for invalidating the rule cache after mutations.
type RequestmapSource struct {
	store access.RequestmapStore
}

// NewRequestmapSource creates a source over a requestmap store.
func NewRequestmapSource(store access.RequestmapStore) *RequestmapSource {
	return &RequestmapSource{store: store}
}

func (s *RequestmapSource) Kind() access.SourceKind { return access.SourceRequestmap }

// ListRules loads the stored entries. A store failure is reported as
// SourceUnavailable: the caller decides fail-open versus fail-closed,
// never this source.
func (s *RequestmapSource) ListRules(ctx context.Context) ([]access.Rule, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, &access.SourceUnavailableError{Kind: access.SourceRequestmap, Err: err}
	}
	rules := make([]access.Rule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, entryToRule(access.RuleEntry{
			Pattern:    e.Pattern,
			Access:     e.Access,
			HTTPMethod: e.HTTPMethod,
		}, access.SourceRequestmap))
	}
	return rules, nil
}

func (s *RequestmapSource) SupportsLiveInvalidation() bool { return true }

// entryToRule normalizes a raw entry: lowercased pattern, uppercased
// method, access value parsed into an AccessExpr.
func entryToRule(e access.RuleEntry, kind access.SourceKind) access.Rule {
	return access.Rule{
		Pattern:    strings.ToLower(e.Pattern),
		HTTPMethod: strings.ToUpper(e.HTTPMethod),
		Access:     ParseAccess(e.Access),
		Source:     kind,
	}
}

// ParseAccess normalizes an access value from its string-or-list
// configuration form. A single value that reads like an expression (it
// contains a call or operator syntax) becomes an opaque expression;
// everything else is treated as a set of authority tokens.
func ParseAccess(values []string) access.AccessExpr {
	if len(values) == 1 && isExpressionString(values[0]) {
		return access.Expression(values[0])
	}
	tokens := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			tokens = append(tokens, v)
		}
	}
	return access.AccessExpr{Authorities: tokens}
}

// isExpressionString distinguishes an expression from a plain authority
// token. Authority tokens are single words; expressions carry calls,
// spaces, or the bare permitAll/denyAll keywords.
func isExpressionString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "permitAll" || s == "denyAll" {
		return true
	}
	return strings.ContainsAny(s, "() ")
}

// Compile-time interface verification.
var (
	_ access.RuleSource = (*AnnotationSource)(nil)
	_ access.RuleSource = (*InterceptMapSource)(nil)
	_ access.RuleSource = (*RequestmapSource)(nil)
)
