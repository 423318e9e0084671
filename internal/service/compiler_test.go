package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/routeguard/routeguard/internal/domain/access"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource implements access.RuleSource with a swappable rule list and
// call counting.
type mockSource struct {
	kind  access.SourceKind
	mu    sync.Mutex
	rules []access.Rule
	err   error
	calls atomic.Int64
}

func newMockSource(kind access.SourceKind, rules ...access.Rule) *mockSource {
	for i := range rules {
		rules[i].Source = kind
	}
	return &mockSource{kind: kind, rules: rules}
}

func (m *mockSource) Kind() access.SourceKind { return m.kind }

func (m *mockSource) ListRules(_ context.Context) ([]access.Rule, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]access.Rule{}, m.rules...), nil
}

func (m *mockSource) SupportsLiveInvalidation() bool { return true }

func (m *mockSource) setRules(rules []access.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rules {
		rules[i].Source = m.kind
	}
	m.rules = rules
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func rule(pattern string, tokens ...string) access.Rule {
	return access.Rule{Pattern: pattern, Access: access.Authorities(tokens...)}
}

func TestRuleCache_SortsBySpecificity(t *testing.T) {
	t.Parallel()

	// Declared least-specific first; the snapshot must sort the catch-all
	// last regardless.
	src := newMockSource(access.SourceInterceptMap,
		rule("/**", access.TokenAnyAuthenticatedAnonymous),
		rule("/admin/**", "ROLE_ADMIN"),
		rule("/admin/users", "ROLE_USER_ADMIN"),
	)
	cache := NewRuleCache(testLogger(), src)

	snap, err := cache.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	want := []string{"/admin/users", "/admin/**", "/**"}
	if len(snap.Rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(snap.Rules), len(want))
	}
	for i, p := range want {
		if snap.Rules[i].Pattern != p {
			t.Errorf("rules[%d] = %q, want %q", i, snap.Rules[i].Pattern, p)
		}
	}
}

func TestRuleCache_SourceOrderBreaksTies(t *testing.T) {
	t.Parallel()

	// Two rules with identical patterns from different source kinds: the
	// earlier-registered kind must win deterministically across rebuilds.
	annotation := newMockSource(access.SourceAnnotation, rule("/shared/**", "ROLE_FROM_ANNOTATION"))
	dynamic := newMockSource(access.SourceRequestmap, rule("/shared/**", "ROLE_FROM_REQUESTMAP"))

	// Register the dynamic source first: rank, not registration position,
	// decides the tie.
	cache := NewRuleCache(testLogger(), dynamic, annotation)

	for i := 0; i < 5; i++ {
		snap, err := cache.Current(context.Background())
		if err != nil {
			t.Fatalf("Current() error = %v", err)
		}
		if got := snap.Rules[0].Access.Authorities[0]; got != "ROLE_FROM_ANNOTATION" {
			t.Fatalf("rebuild %d: first rule access = %s, want annotation rule first", i, got)
		}
		cache.Invalidate()
	}
}

func TestRuleCache_MemoizesUntilInvalidated(t *testing.T) {
	t.Parallel()

	src := newMockSource(access.SourceInterceptMap, rule("/a/**", "ROLE_A"))
	cache := NewRuleCache(testLogger(), src)
	ctx := context.Background()

	first, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	second, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if first != second {
		t.Error("Current() should return the memoized snapshot")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source listed %d times, want 1", got)
	}

	cache.Invalidate()
	third, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() after Invalidate() error = %v", err)
	}
	if third == first {
		t.Error("Invalidate() should force a rebuild")
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("source listed %d times after invalidation, want 2", got)
	}
}

func TestRuleCache_ReadYourWrites(t *testing.T) {
	t.Parallel()

	src := newMockSource(access.SourceRequestmap, rule("/old/**", "ROLE_OLD"))
	cache := NewRuleCache(testLogger(), src)
	ctx := context.Background()

	if _, err := cache.Current(ctx); err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	src.setRules([]access.Rule{rule("/new/**", "ROLE_NEW")})
	cache.Invalidate()

	snap, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snap.Rules[0].Pattern != "/new/**" {
		t.Errorf("post-invalidation snapshot has %q, want the mutated rules", snap.Rules[0].Pattern)
	}
}

func TestRuleCache_InvalidPatternFailsFast(t *testing.T) {
	t.Parallel()

	src := newMockSource(access.SourceInterceptMap,
		rule("/ok/**", "ROLE_A"),
		rule("missing-slash/**", "ROLE_B"),
	)
	cache := NewRuleCache(testLogger(), src)

	_, err := cache.Current(context.Background())
	if err == nil {
		t.Fatal("Current() should reject an invalid pattern")
	}
	if got := err.Error(); got == "" || !containsAll(got, "missing-slash", "interceptmap") {
		t.Errorf("error %q should identify the offending rule and source", got)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		found := false
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestRuleCache_SourceFailurePropagates(t *testing.T) {
	t.Parallel()

	store := &mockRequestmapStore{err: errors.New("db down")}
	cache := NewRuleCache(testLogger(), NewRequestmapSource(store))

	_, err := cache.Current(context.Background())
	if !errors.Is(err, access.ErrSourceUnavailable) {
		t.Errorf("Current() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestRuleCache_StaleSnapshotServedDuringRebuild(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newMockSource(access.SourceInterceptMap, rule("/a/**", "ROLE_A"))
	cache := NewRuleCache(testLogger(), src)
	ctx := context.Background()

	first, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	// Hold the rebuild lock to simulate an in-flight rebuild, then verify
	// readers still get the previous snapshot without blocking.
	cache.Invalidate()
	cache.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		snap, err := cache.Current(ctx)
		if err != nil {
			t.Errorf("Current() during rebuild error = %v", err)
			return
		}
		if snap != first {
			t.Error("reader during rebuild should see the previous snapshot")
		}
	}()
	<-done
	cache.mu.Unlock()
}

// gatedSource blocks one ListRules call partway so a test can mutate rules
// and invalidate while a rebuild is reading the source.
type gatedSource struct {
	*mockSource
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) ListRules(ctx context.Context) ([]access.Rule, error) {
	if g.gate.CompareAndSwap(true, false) {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.mockSource.ListRules(ctx)
}

func TestRuleCache_InvalidateDuringRebuildForcesAnotherRebuild(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newMockSource(access.SourceRequestmap, rule("/old/**", "ROLE_OLD"))
	gated := &gatedSource{
		mockSource: src,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	cache := NewRuleCache(testLogger(), gated)
	ctx := context.Background()

	if _, err := cache.Current(ctx); err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	cache.Invalidate()
	gated.gate.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// This rebuild reads the pre-mutation rules; its snapshot is
		// allowed, but it must not swallow the invalidation below.
		if _, err := cache.Current(ctx); err != nil {
			t.Errorf("Current() during gated rebuild error = %v", err)
		}
	}()

	// The rebuild is now inside ListRules. Commit a mutation and
	// invalidate before letting it finish.
	<-gated.entered
	src.setRules([]access.Rule{rule("/new/**", "ROLE_NEW")})
	cache.Invalidate()
	close(gated.release)
	<-done

	snap, err := cache.Current(ctx)
	if err != nil {
		t.Fatalf("Current() after mid-rebuild invalidation error = %v", err)
	}
	if got := snap.Rules[0].Pattern; got != "/new/**" {
		t.Errorf("snapshot after invalidation holds %q, want /new/**", got)
	}
}

func TestRuleCache_ConcurrentReadsAndInvalidations(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newMockSource(access.SourceInterceptMap,
		rule("/admin/**", "ROLE_ADMIN"),
		rule("/**", access.TokenAnyAuthenticatedAnonymous),
	)
	cache := NewRuleCache(testLogger(), src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap, err := cache.Current(ctx)
				if err != nil {
					t.Errorf("Current() error = %v", err)
					return
				}
				if len(snap.Rules) != 2 {
					t.Errorf("snapshot has %d rules, want 2", len(snap.Rules))
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		cache.Invalidate()
	}
	wg.Wait()
}
