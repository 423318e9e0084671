// Package config provides configuration types for RouteGuard.
package config

import (
	"github.com/spf13/viper"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// Config is the top-level configuration for RouteGuard.
type Config struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Security configures rule sources and the lockdown posture.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SecurityConfig configures the policy resolution core.
type SecurityConfig struct {
	// ConfigType selects the primary rule source kind. Exactly one kind
	// is primary; configuring data for a non-primary kind is an error.
	// Valid values: "Annotation", "Map", "RequestmapInstances".
	ConfigType string `yaml:"config_type" mapstructure:"config_type" validate:"required,oneof=Annotation Map RequestmapInstances"`

	// RejectIfNoRule denies requests no rule covers. Defaults to true.
	RejectIfNoRule bool `yaml:"reject_if_no_rule" mapstructure:"reject_if_no_rule"`

	// RejectPublicInvocations treats uncovered requests as a hard
	// configuration error rather than an authorization denial. Defaults
	// to true. Ignored while RejectIfNoRule is true.
	RejectPublicInvocations bool `yaml:"reject_public_invocations" mapstructure:"reject_public_invocations"`

	// StaticRules are always-on rules compiled in regardless of the
	// primary source kind. Typically asset/error/login path exemptions.
	StaticRules []RuleEntryConfig `yaml:"static_rules" mapstructure:"static_rules" validate:"omitempty,dive"`

	// InterceptURLMap feeds the configuration-map source. Only used when
	// ConfigType is "Map".
	InterceptURLMap []RuleEntryConfig `yaml:"intercept_url_map" mapstructure:"intercept_url_map" validate:"omitempty,dive"`

	// Requestmap configures the dynamic-store source. Only used when
	// ConfigType is "RequestmapInstances".
	Requestmap RequestmapConfig `yaml:"requestmap" mapstructure:"requestmap"`

	// DecisionCacheSize bounds the per-request verdict cache.
	// Defaults to 1024.
	DecisionCacheSize int `yaml:"decision_cache_size" mapstructure:"decision_cache_size" validate:"omitempty,min=1"`
}

// RequestmapConfig configures the SQLite-backed requestmap store.
type RequestmapConfig struct {
	// Path is the SQLite database file holding the requestmap entries.
	Path string `yaml:"path" mapstructure:"path"`
}

// RuleEntryConfig defines a single rule entry.
// Access accepts either a single string (a token or an expression) or a
// list of tokens; the loader normalizes both forms to a list.
type RuleEntryConfig struct {
	// Pattern is an Ant-style glob. Must start with "/".
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required,ant_pattern"`

	// Access is the requirement: authority tokens or one expression.
	Access []string `yaml:"access" mapstructure:"access" validate:"required,min=1"`

	// HTTPMethod restricts the rule to one method when set.
	HTTPMethod string `yaml:"http_method" mapstructure:"http_method" validate:"omitempty,http_method"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Security.ConfigType == "" {
		c.Security.ConfigType = access.ConfigTypeAnnotation
	}
	if c.Security.DecisionCacheSize == 0 {
		c.Security.DecisionCacheSize = 1024
	}

	// Lockdown switches default to true: locked down unless explicitly
	// relaxed. viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("security.reject_if_no_rule") {
		c.Security.RejectIfNoRule = true
	}
	if !viper.IsSet("security.reject_public_invocations") {
		c.Security.RejectPublicInvocations = true
	}
}

// Lockdown returns the configured lockdown policy.
func (c *SecurityConfig) Lockdown() access.LockdownPolicy {
	return access.LockdownPolicy{
		RejectIfNoRule:          c.RejectIfNoRule,
		RejectPublicInvocations: c.RejectPublicInvocations,
	}
}

// StaticRuleEntries converts the static rules to domain entries.
func (c *SecurityConfig) StaticRuleEntries() []access.RuleEntry {
	return toRuleEntries(c.StaticRules)
}

// InterceptMapEntries converts the intercept URL map to domain entries.
func (c *SecurityConfig) InterceptMapEntries() []access.RuleEntry {
	return toRuleEntries(c.InterceptURLMap)
}

func toRuleEntries(entries []RuleEntryConfig) []access.RuleEntry {
	out := make([]access.RuleEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, access.RuleEntry{
			Pattern:    e.Pattern,
			Access:     append([]string(nil), e.Access...),
			HTTPMethod: e.HTTPMethod,
		})
	}
	return out
}
