// Package config provides configuration loading for RouteGuard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for routeguard.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("routeguard")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ROUTEGUARD_SECURITY_CONFIG_TYPE
	viper.SetEnvPrefix("ROUTEGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a routeguard config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, ".routeguard"),
		"/etc/routeguard",
	})
}

// findConfigFileInPaths returns the first routeguard.yaml or routeguard.yml
// found in the given directories, .yaml preferred within a directory.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "routeguard"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable support.
// Example: ROUTEGUARD_SECURITY_REJECT_IF_NO_RULE overrides
// security.reject_if_no_rule.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("logging.level")

	_ = viper.BindEnv("security.config_type")
	_ = viper.BindEnv("security.reject_if_no_rule")
	_ = viper.BindEnv("security.reject_public_invocations")
	_ = viper.BindEnv("security.decision_cache_size")
	_ = viper.BindEnv("security.requestmap.path")

	// Note: static_rules and intercept_url_map are arrays, complex to
	// override via env. Users should use the config file for these.
}

// stringToSliceHook lets a scalar access value decode into the []string
// field: `access: ROLE_ADMIN` and `access: isAuthenticated()` become
// one-element lists. A comma split would corrupt expressions such as
// hasAnyRole('a','b'), so the whole string stays one element.
func stringToSliceHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String && to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.String {
		return []string{data.(string)}, nil
	}
	return data, nil
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToSliceHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := viper.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or an empty string if none was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
