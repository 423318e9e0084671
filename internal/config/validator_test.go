package config

import (
	"strings"
	"testing"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Security: SecurityConfig{
			ConfigType: access.ConfigTypeMap,
			InterceptURLMap: []RuleEntryConfig{
				{Pattern: "/admin/**", Access: []string{"ROLE_ADMIN"}},
			},
			DecisionCacheSize: 1024,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_AnnotationWithoutEntries(t *testing.T) {
	t.Parallel()

	// The annotation source needs no configured entries.
	cfg := &Config{
		Security: SecurityConfig{ConfigType: access.ConfigTypeAnnotation},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_RejectsUnknownConfigType(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Security.ConfigType = "Database"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should reject an unknown config_type")
	}
	if !strings.Contains(err.Error(), "config_type") && !strings.Contains(err.Error(), "configtype") {
		t.Errorf("error %q should name the failing field", err)
	}
}

func TestValidate_RejectsBadPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
	}{
		{"missing leading slash", "admin/**"},
		{"double star inside segment", "/a**b/c"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			cfg.Security.InterceptURLMap[0].Pattern = tt.pattern

			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() accepted pattern %q", tt.pattern)
			}
		})
	}
}

func TestValidate_RejectsBadMethod(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Security.InterceptURLMap[0].HTTPMethod = "FETCH"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should reject an unknown HTTP method")
	}
	if !strings.Contains(err.Error(), "FETCH") {
		t.Errorf("error %q should quote the bad method", err)
	}
}

func TestValidate_AcceptsLowercaseMethod(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Security.InterceptURLMap[0].HTTPMethod = "put"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() should accept a lowercase method: %v", err)
	}
}

func TestValidate_RejectsEmptyAccess(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Security.InterceptURLMap[0].Access = nil

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an entry without an access value")
	}
}

func TestValidate_SourceExclusivity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name: "intercept map under wrong config type",
			mutate: func(c *Config) {
				c.Security.ConfigType = access.ConfigTypeAnnotation
			},
			wantSub: "intercept_url_map",
		},
		{
			name: "requestmap path under wrong config type",
			mutate: func(c *Config) {
				c.Security.Requestmap.Path = "/var/lib/routeguard/rules.db"
			},
			wantSub: "requestmap.path",
		},
		{
			name: "map type without entries",
			mutate: func(c *Config) {
				c.Security.InterceptURLMap = nil
				c.Security.StaticRules = []RuleEntryConfig{
					{Pattern: "/assets/**", Access: []string{"permitAll"}},
				}
			},
			wantSub: "requires intercept_url_map",
		},
		{
			name: "requestmap type without path",
			mutate: func(c *Config) {
				c.Security.ConfigType = access.ConfigTypeRequestmapInstances
				c.Security.InterceptURLMap = nil
			},
			wantSub: "requires requestmap.path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_StaticRulesAllowedWithAnySourceKind(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Security: SecurityConfig{
			ConfigType: access.ConfigTypeAnnotation,
			StaticRules: []RuleEntryConfig{
				{Pattern: "/assets/**", Access: []string{"permitAll"}},
				{Pattern: "/login/**", Access: []string{"permitAll"}},
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}
