package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/routeguard/routeguard/internal/domain/access"
)

func benchSource(n int) *mockSource {
	rules := make([]access.Rule, 0, n+1)
	for i := 0; i < n; i++ {
		rules = append(rules, rule(fmt.Sprintf("/api/v1/resource%d/**", i), fmt.Sprintf("ROLE_R%d", i)))
	}
	rules = append(rules, rule("/**", access.TokenAnyAuthenticatedAnonymous))
	return newMockSource(access.SourceInterceptMap, rules...)
}

// BenchmarkResolve measures single-threaded resolution against a 100-rule
// compiled set.
func BenchmarkResolve(b *testing.B) {
	cache := NewRuleCache(testLogger(), benchSource(100))
	r := NewResolver(cache, &stubEvaluator{}, testLogger())
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		_, _ = r.Resolve(ctx, "GET", "/api/v1/resource50/items/7")
	}
}

// BenchmarkResolveParallel measures resolution under contention. The
// snapshot is published through an atomic pointer, so readers never block.
func BenchmarkResolveParallel(b *testing.B) {
	cache := NewRuleCache(testLogger(), benchSource(100))
	r := NewResolver(cache, &stubEvaluator{}, testLogger())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, _ = r.Resolve(ctx, "GET", "/api/v1/resource50/items/7")
		}
	})
}

// BenchmarkAuthorizeCacheHit measures a verdict served from the decision
// cache.
func BenchmarkAuthorizeCacheHit(b *testing.B) {
	cache := NewRuleCache(testLogger(), benchSource(100))
	r := NewResolver(cache, &stubEvaluator{}, testLogger())
	ctx := context.Background()
	sub := access.Subject{Authorities: []string{"ROLE_R50"}, Authenticated: true}

	_, _ = r.Authorize(ctx, "GET", "/api/v1/resource50/items/7", sub)

	b.ResetTimer()
	for b.Loop() {
		_, _ = r.Authorize(ctx, "GET", "/api/v1/resource50/items/7", sub)
	}
}
