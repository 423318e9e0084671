package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/domain/antpath"
)

// CompiledRule pairs a rule with its precomputed specificity key.
type CompiledRule struct {
	access.Rule
	Key antpath.Specificity
}

// CompiledRuleSet is the merged, specificity-ordered rule list built from
// all active sources. Immutable once built: a new instance replaces the old
// one atomically on rebuild, so readers never observe a partial list.
type CompiledRuleSet struct {
	Rules   []CompiledRule
	BuiltAt time.Time
}

// RuleCache merges the registered rule sources into one CompiledRuleSet and
// memoizes it. Invalidate marks the snapshot stale; the next Current call
// rebuilds. At most one rebuild is in flight at a time, and readers keep
// getting the previous valid snapshot while a rebuild runs.
type RuleCache struct {
	sources []access.RuleSource
	logger  *slog.Logger

	snapshot atomic.Pointer[CompiledRuleSet]
	stale    atomic.Bool
	mu       sync.Mutex // serializes rebuilds
}

// NewRuleCache creates a cache over the given sources. Registration order
// is the merge order and feeds the specificity tie-break.
func NewRuleCache(logger *slog.Logger, sources ...access.RuleSource) *RuleCache {
	return &RuleCache{sources: sources, logger: logger}
}

// Current returns the compiled rule set, building it on first use or after
// invalidation. While another caller rebuilds, the previous valid snapshot
// is served without blocking. A source failure during a rebuild propagates
// to the caller; the stale snapshot is never substituted silently.
func (c *RuleCache) Current(ctx context.Context) (*CompiledRuleSet, error) {
	snap := c.snapshot.Load()
	if snap != nil && !c.stale.Load() {
		return snap, nil
	}

	if c.mu.TryLock() {
		defer c.mu.Unlock()
		// Double-check: another rebuild may have finished while we raced
		// for the lock.
		if s := c.snapshot.Load(); s != nil && !c.stale.Load() {
			return s, nil
		}
		return c.rebuildLocked(ctx)
	}

	// A rebuild is in flight. Serve the previous snapshot if one exists;
	// only the very first build makes callers wait.
	if snap != nil {
		return snap, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.snapshot.Load(); s != nil && !c.stale.Load() {
		return s, nil
	}
	return c.rebuildLocked(ctx)
}

// Invalidate marks the compiled rule set stale. The rebuild happens lazily
// on the next Current call; in-flight resolutions keep their snapshot.
func (c *RuleCache) Invalidate() {
	c.stale.Store(true)
}

// rebuildLocked builds and publishes a fresh snapshot. Must be called with
// c.mu held.
func (c *RuleCache) rebuildLocked(ctx context.Context) (*CompiledRuleSet, error) {
	// Clear staleness before reading the sources. An Invalidate that lands
	// while the sources are being read re-marks the cache stale, so the
	// next Current call rebuilds again instead of serving a snapshot built
	// from pre-mutation data.
	c.stale.Store(false)
	built, err := c.build(ctx)
	if err != nil {
		c.stale.Store(true)
		return nil, err
	}
	c.snapshot.Store(built)

	c.logger.Info("rule cache rebuilt",
		"rules", len(built.Rules),
		"sources", len(c.sources),
	)
	return built, nil
}

// build collects rules from every source in registration order, validates
// patterns, assigns specificity keys, and sorts. Pure given the source
// outputs: no state is carried across rebuilds besides the published
// snapshot reference.
func (c *RuleCache) build(ctx context.Context) (*CompiledRuleSet, error) {
	var compiled []CompiledRule
	order := 0
	for _, src := range c.sources {
		rules, err := src.ListRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list rules from %s source: %w", src.Kind(), err)
		}
		for i, r := range rules {
			if err := antpath.ValidatePattern(r.Pattern); err != nil {
				return nil, fmt.Errorf("rule %d from %s source: %w", i, src.Kind(), err)
			}
			key := antpath.Of(r.Pattern)
			key.SourceRank = r.Source.Rank()
			key.DeclOrder = order
			order++
			compiled = append(compiled, CompiledRule{Rule: r, Key: key})
		}
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Key.Compare(compiled[j].Key) < 0
	})

	return &CompiledRuleSet{Rules: compiled, BuiltAt: time.Now().UTC()}, nil
}
