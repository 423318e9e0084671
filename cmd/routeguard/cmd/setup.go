package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/routeguard/routeguard/internal/adapter/outbound/cel"
	"github.com/routeguard/routeguard/internal/adapter/outbound/sqlite"
	"github.com/routeguard/routeguard/internal/config"
	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/service"
)

// stack bundles the wired-up resolution components for a CLI invocation.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	resolver *service.Resolver
	store    *sqlite.RequestmapStore // nil unless config_type is RequestmapInstances
}

// Close releases resources held by the stack.
func (s *stack) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// buildStack loads the configuration and wires the rule sources, cache,
// evaluator, and resolver.
//
// Annotation mode carries no rule data of its own here: annotation rules
// are handed to the library by their producer at startup, so a CLI
// invocation sees only the static exemption rules.
func buildStack() (*stack, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Logging.Level)

	var sources []access.RuleSource
	if entries := cfg.Security.StaticRuleEntries(); len(entries) > 0 {
		sources = append(sources, service.NewInterceptMapSource(entries))
	}

	s := &stack{cfg: cfg, logger: logger}
	kind, err := access.ParseConfigType(cfg.Security.ConfigType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case access.SourceInterceptMap:
		sources = append(sources, service.NewInterceptMapSource(cfg.Security.InterceptMapEntries()))
	case access.SourceRequestmap:
		store, err := sqlite.Open(cfg.Security.Requestmap.Path, logger)
		if err != nil {
			return nil, err
		}
		s.store = store
		sources = append(sources, service.NewRequestmapSource(store))
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create evaluator: %w", err)
	}

	cache := service.NewRuleCache(logger, sources...)
	s.resolver = service.NewResolver(cache, evaluator, logger,
		service.WithLockdownPolicy(cfg.Security.Lockdown()),
		service.WithDecisionCacheSize(cfg.Security.DecisionCacheSize),
	)
	return s, nil
}

// newLogger creates a text slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
