package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/domain/antpath"
)

// Resolver is the policy resolution facade: given (method, path) it finds
// the most specific applicable rule in the cached rule set, applying the
// lockdown policy when nothing matches. Resolution is pure in-memory
// computation; no I/O happens on the request path after the snapshot is
// built. Safe for concurrent use.
type Resolver struct {
	cache     *RuleCache
	evaluator access.ExpressionEvaluator
	lockdown  access.LockdownPolicy
	decisions *decisionCache
	logger    *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLockdownPolicy overrides the default lockdown policy (both switches on).
func WithLockdownPolicy(p access.LockdownPolicy) ResolverOption {
	return func(r *Resolver) {
		r.lockdown = p.Effective()
	}
}

// WithDecisionCacheSize sets the maximum number of cached verdicts.
func WithDecisionCacheSize(size int) ResolverOption {
	return func(r *Resolver) {
		r.decisions = newDecisionCache(size)
	}
}

// NewResolver creates a resolver over the given rule cache and evaluator.
func NewResolver(cache *RuleCache, evaluator access.ExpressionEvaluator, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:     cache,
		evaluator: evaluator,
		lockdown:  access.DefaultLockdownPolicy().Effective(),
		decisions: newDecisionCache(1024),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the decision for one request. The compiled rule set is
// scanned in specificity order; the first rule whose pattern matches the
// path and whose method is unset or equal wins. First-match-wins is
// correct only because the list is pre-sorted by specificity.
func (r *Resolver) Resolve(ctx context.Context, method, path string) (access.Decision, error) {
	snap, err := r.cache.Current(ctx)
	if err != nil {
		return access.Decision{}, fmt.Errorf("resolve %s %s: %w", method, path, err)
	}

	method = strings.ToUpper(method)
	// Map and requestmap rules are lowercased at the source boundary and
	// match case-insensitively; annotation patterns are case-correct and
	// match the path as given.
	lower := strings.ToLower(path)
	for i := range snap.Rules {
		rule := &snap.Rules[i]
		if rule.HTTPMethod != "" && rule.HTTPMethod != method {
			continue
		}
		requestPath := path
		if rule.Source != access.SourceAnnotation {
			requestPath = lower
		}
		if antpath.Match(rule.Pattern, requestPath) {
			return access.Decision{
				Outcome:     access.OutcomeMatched,
				Requirement: rule.Access,
				Pattern:     rule.Pattern,
				Reason:      fmt.Sprintf("matched %s rule %s", rule.Source, rule.Pattern),
			}, nil
		}
	}

	return r.lockdown.Decide(method, path), nil
}

// Authorize resolves the request and evaluates the matched requirement
// against the subject via the evaluator collaborator. Verdicts are cached
// per (method, path, subject); the cache is cleared on invalidation so
// resolutions after an invalidation observe the mutated rules.
func (r *Resolver) Authorize(ctx context.Context, method, path string, sub access.Subject) (access.Authorization, error) {
	key := computeDecisionKey(strings.ToUpper(method), path, sub)
	if auth, ok := r.decisions.Get(key); ok {
		return auth, nil
	}

	// Capture the cache generation before resolving. If ClearCachedRules
	// runs while this verdict is being computed, Put discards it.
	gen := r.decisions.Generation()

	decision, err := r.Resolve(ctx, method, path)
	if err != nil {
		return access.Authorization{}, err
	}

	auth := access.Authorization{Decision: decision}
	if decision.Matched() {
		satisfied, err := r.evaluator.Satisfies(ctx, decision.Requirement, sub)
		if err != nil {
			return access.Authorization{}, fmt.Errorf("evaluate requirement %q: %w", decision.Requirement, err)
		}
		auth.Allowed = satisfied
	}

	r.decisions.Put(key, auth, gen)
	return auth, nil
}

// ClearCachedRules marks the compiled rule set stale and drops cached
// verdicts. The requestmap collaborator must call this after any committed
// mutation; resolutions already in flight keep their snapshot.
func (r *Resolver) ClearCachedRules() {
	r.cache.Invalidate()
	r.decisions.Clear()
	r.logger.Debug("cached rules cleared")
}

// CompiledRules returns the current compiled rule set, building it if
// needed. Useful for inspection surfaces.
func (r *Resolver) CompiledRules(ctx context.Context) (*CompiledRuleSet, error) {
	return r.cache.Current(ctx)
}

// DecisionCacheSize returns the number of cached verdicts.
func (r *Resolver) DecisionCacheSize() int {
	return r.decisions.Size()
}

// LockdownPolicy returns the normalized lockdown policy in effect.
func (r *Resolver) LockdownPolicy() access.LockdownPolicy {
	return r.lockdown
}
