package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/domain/antpath"
)

// validHTTPMethods are the methods accepted on a rule entry.
var validHTTPMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {}, "PATCH": {},
	"HEAD": {}, "OPTIONS": {}, "TRACE": {},
}

// RegisterCustomValidators registers RouteGuard-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("ant_pattern", validateAntPattern); err != nil {
		return fmt.Errorf("failed to register ant_pattern validator: %w", err)
	}
	if err := v.RegisterValidation("http_method", validateHTTPMethod); err != nil {
		return fmt.Errorf("failed to register http_method validator: %w", err)
	}
	return nil
}

// validateAntPattern validates an Ant-style glob pattern field.
func validateAntPattern(fl validator.FieldLevel) bool {
	return antpath.ValidatePattern(fl.Field().String()) == nil
}

// validateHTTPMethod validates an HTTP method field (case-insensitive).
func validateHTTPMethod(fl validator.FieldLevel) bool {
	_, ok := validHTTPMethods[strings.ToUpper(fl.Field().String())]
	return ok
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return c.Security.validateSourceExclusivity()
}

// validateSourceExclusivity ensures exactly one primary rule source kind is
// configured. Supplying data for a non-primary kind is a hard error, not a
// silent ignore: it almost always means the operator expected those rules
// to be enforced.
func (c *SecurityConfig) validateSourceExclusivity() error {
	kind, err := access.ParseConfigType(c.ConfigType)
	if err != nil {
		return err
	}

	if len(c.InterceptURLMap) > 0 && kind != access.SourceInterceptMap {
		return fmt.Errorf("security: intercept_url_map is configured but config_type is %q (want %q)",
			c.ConfigType, access.ConfigTypeMap)
	}
	if c.Requestmap.Path != "" && kind != access.SourceRequestmap {
		return fmt.Errorf("security: requestmap.path is configured but config_type is %q (want %q)",
			c.ConfigType, access.ConfigTypeRequestmapInstances)
	}

	switch kind {
	case access.SourceInterceptMap:
		if len(c.InterceptURLMap) == 0 {
			return errors.New("security: config_type Map requires intercept_url_map entries")
		}
	case access.SourceRequestmap:
		if c.Requestmap.Path == "" {
			return errors.New("security: config_type RequestmapInstances requires requestmap.path")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError builds an actionable message for one failure.
func formatSingleValidationError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %q", field, e.Param(), e.Value())
	case "ant_pattern":
		return fmt.Sprintf("%s: %q is not a valid Ant-style pattern (must start with '/', '**' only as a whole segment)", field, e.Value())
	case "http_method":
		return fmt.Sprintf("%s: %q is not a valid HTTP method", field, e.Value())
	case "min":
		return fmt.Sprintf("%s: must have at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s: failed %s validation", field, e.Tag())
	}
}
