// Package cel provides a CEL-backed access expression evaluator.
//
// Access expressions are written in the security dialect used by rule
// definitions: permitAll, denyAll, isAuthenticated(), isRememberMe(),
// isFullyAuthenticated(), isAnonymous(), hasRole('X'), hasAnyRole('X','Y'),
// combined with and/or/not. The evaluator rewrites that dialect into CEL
// over subject variables, compiles once, and caches the compiled programs.
package cel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// maxExpressionLength is the maximum allowed length for access expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates access expressions against a subject.
// Safe for concurrent use.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewEvaluator creates an evaluator with the access expression environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := newAccessEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create access environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// newAccessEnvironment creates a CEL environment exposing the subject's
// authentication state and authorities.
func newAccessEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("authorities", cel.ListType(cel.StringType)),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("remember_me", cel.BoolType),
		cel.Variable("fully_authenticated", cel.BoolType),
	)
}

// Dialect rewrites applied before CEL compilation. Order matters: function
// call forms are rewritten before bare keywords so e.g. hasAnyRole's
// argument list survives intact.
var (
	hasAnyRoleRe = regexp.MustCompile(`hasAnyRole\(([^)]*)\)`)
	hasRoleRe    = regexp.MustCompile(`hasRole\(([^)]*)\)`)
	keywordRe    = regexp.MustCompile(`\b(or|and|not|permitAll|denyAll)\b`)
)

var callRewrites = map[string]string{
	"isAuthenticated()":      "authenticated",
	"isRememberMe()":         "remember_me",
	"isFullyAuthenticated()": "fully_authenticated",
	"isAnonymous()":          "!authenticated",
}

var keywordRewrites = map[string]string{
	"or":        "||",
	"and":       "&&",
	"not":       "!",
	"permitAll": "true",
	"denyAll":   "false",
}

// rewrite translates the access expression dialect into CEL. Keyword and
// call rewrites apply only outside quoted literals: a role literally named
// "or" must survive hasRole('or').
func rewrite(expr string) string {
	expr = hasAnyRoleRe.ReplaceAllString(expr, `[$1].exists(r, r in authorities)`)
	expr = hasRoleRe.ReplaceAllString(expr, `($1 in authorities)`)
	return mapOutsideQuotes(expr, func(s string) string {
		for call, repl := range callRewrites {
			s = strings.ReplaceAll(s, call, repl)
		}
		return keywordRe.ReplaceAllStringFunc(s, func(kw string) string {
			return keywordRewrites[kw]
		})
	})
}

// mapOutsideQuotes applies fn to the spans of expr outside single-quoted
// string literals; quoted spans pass through verbatim. An unterminated
// quote leaves the remainder untransformed for CEL to reject.
func mapOutsideQuotes(expr string, fn func(string) string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(expr, '\'')
		if open < 0 {
			b.WriteString(fn(expr))
			return b.String()
		}
		length := strings.IndexByte(expr[open+1:], '\'')
		if length < 0 {
			b.WriteString(fn(expr[:open]))
			b.WriteString(expr[open:])
			return b.String()
		}
		b.WriteString(fn(expr[:open]))
		b.WriteString(expr[open : open+length+2])
		expr = expr[open+length+2:]
	}
}

// compile returns the compiled program for expr, translating the dialect
// and caching the result.
func (e *Evaluator) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(rewrite(expr))
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that an access expression is syntactically
// valid and within the safety limits. Callers persisting expressions (e.g.
// bulk imports into the requestmap store) should validate before saving.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.compile(expr); err != nil {
		return fmt.Errorf("invalid access expression: %w", err)
	}
	return nil
}

// evaluate runs a compiled expression against the subject. The caller's
// context bounds the evaluation along with the internal timeout.
func (e *Evaluator) evaluate(ctx context.Context, expr string, sub access.Subject) (bool, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}

	authorities := make([]string, len(sub.Authorities))
	copy(authorities, sub.Authorities)
	activation := map[string]any{
		"authorities":         authorities,
		"authenticated":       sub.Authenticated,
		"remember_me":         sub.RememberMe,
		"fully_authenticated": sub.FullyAuthenticated,
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// Satisfies reports whether the subject satisfies the access requirement.
// Authority-set requirements are satisfied by holding any listed authority;
// reserved tokens are checked through their expression equivalents. An
// empty requirement is public and always satisfied.
func (e *Evaluator) Satisfies(ctx context.Context, req access.AccessExpr, sub access.Subject) (bool, error) {
	if req.IsEmpty() {
		return true, nil
	}
	if req.IsExpression() {
		return e.evaluate(ctx, req.Expression, sub)
	}
	for _, tok := range req.Authorities {
		if expr, ok := access.ReservedExpressions[tok]; ok {
			satisfied, err := e.evaluate(ctx, expr, sub)
			if err != nil {
				return false, fmt.Errorf("reserved token %s: %w", tok, err)
			}
			if satisfied {
				return true, nil
			}
			continue
		}
		if sub.HasAuthority(tok) {
			return true, nil
		}
	}
	return false, nil
}

// Compile-time interface verification.
var _ access.ExpressionEvaluator = (*Evaluator)(nil)
