package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/service"
)

// SubjectFunc extracts the caller's identity from a request. It is
// typically backed by the authentication subsystem; the guard never
// authenticates by itself.
type SubjectFunc func(*http.Request) access.Subject

// Guard is an http.Handler middleware enforcing resolver verdicts:
//
//   - allowed               -> pass through to the next handler
//   - denied / no rule      -> 403
//   - config error, no rule -> 500 (missing rule, not an unauthorized caller)
//   - source unavailable    -> 503
//   - evaluator failure     -> 500
type Guard struct {
	resolver *service.Resolver
	subject  SubjectFunc
	logger   *slog.Logger
	metrics  *Metrics
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithMetrics attaches Prometheus metrics to the guard.
func WithMetrics(m *Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

// NewGuard creates a guard over the given resolver. subject extracts the
// caller from each request.
func NewGuard(resolver *service.Resolver, subject SubjectFunc, logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		resolver: resolver,
		subject:  subject,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap returns a handler that authorizes every request before delegating
// to next.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sub := g.subject(r)

		auth, err := g.resolver.Authorize(r.Context(), r.Method, r.URL.Path, sub)
		g.observe(r.Context(), start)
		if err != nil {
			g.fail(w, r, err)
			return
		}

		if auth.Allowed {
			g.count("allowed")
			next.ServeHTTP(w, r)
			return
		}

		switch auth.Decision.Outcome {
		case access.OutcomeConfigErrorNoRule:
			g.count(string(access.OutcomeConfigErrorNoRule))
			g.logger.Error("request path has no authorization rule",
				"method", r.Method, "path", r.URL.Path)
			http.Error(w, "no authorization rule configured for this path", http.StatusInternalServerError)
		case access.OutcomeDeniedNoRule:
			g.count(string(access.OutcomeDeniedNoRule))
			http.Error(w, "forbidden", http.StatusForbidden)
		default:
			// Matched but the requirement was not satisfied.
			g.count("denied")
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	})
}

// fail maps resolution failures to responses. A storage outage surfaces as
// 503 so callers can distinguish it from a policy verdict.
func (g *Guard) fail(w http.ResponseWriter, r *http.Request, err error) {
	if g.metrics != nil {
		g.metrics.ResolutionFailures.Inc()
	}
	g.logger.Error("authorization failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	if errors.Is(err, access.ErrSourceUnavailable) {
		http.Error(w, "authorization rules unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "authorization error", http.StatusInternalServerError)
}

func (g *Guard) observe(ctx context.Context, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	g.metrics.DecisionCacheSize.Set(float64(g.resolver.DecisionCacheSize()))
	// Snapshot reads are an atomic load once the set is built.
	if snap, err := g.resolver.CompiledRules(ctx); err == nil {
		g.metrics.CompiledRules.Set(float64(len(snap.Rules)))
	}
}

func (g *Guard) count(outcome string) {
	if g.metrics != nil {
		g.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	}
}
