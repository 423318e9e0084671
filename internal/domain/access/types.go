// Package access contains domain types for URL authorization policy resolution.
package access

import (
	"fmt"
	"sort"
	"strings"
)

// Reserved authority tokens. They describe an authentication state rather
// than a granted role and are interpreted through their boolean expression
// equivalents (see ReservedExpressions).
const (
	// TokenAnyAuthenticatedAnonymous admits any caller, including
	// unauthenticated ones.
	TokenAnyAuthenticatedAnonymous = "ANY_AUTHENTICATED_ANONYMOUS"
	// TokenAnyAuthenticatedRemembered admits callers authenticated via
	// persistent-login or explicit login.
	TokenAnyAuthenticatedRemembered = "ANY_AUTHENTICATED_REMEMBERED"
	// TokenAnyAuthenticatedFull admits only callers who logged in
	// explicitly in this session.
	TokenAnyAuthenticatedFull = "ANY_AUTHENTICATED_FULL"
)

// ReservedExpressions maps reserved authority tokens to their boolean
// expression equivalents. The expression evaluator collaborator documents
// the same table; the core stores tokens untranslated.
var ReservedExpressions = map[string]string{
	TokenAnyAuthenticatedAnonymous:  "permitAll",
	TokenAnyAuthenticatedRemembered: "isAuthenticated() or isRememberMe()",
	TokenAnyAuthenticatedFull:       "isFullyAuthenticated()",
}

// IsReservedToken reports whether tok is one of the reserved authority tokens.
func IsReservedToken(tok string) bool {
	_, ok := ReservedExpressions[tok]
	return ok
}

// AccessExpr is an access requirement: either a set of required authority
// tokens (any one of which satisfies the requirement) or an opaque boolean
// expression delegated to the evaluator collaborator. An empty AccessExpr
// means public access.
type AccessExpr struct {
	// Authorities are the required authority tokens. Satisfied when the
	// caller holds at least one.
	Authorities []string
	// Expression is an opaque boolean expression over the caller's
	// authentication state. Mutually exclusive with Authorities.
	Expression string
}

// Authorities builds an authority-set requirement.
func Authorities(tokens ...string) AccessExpr {
	return AccessExpr{Authorities: tokens}
}

// Expression builds an expression requirement.
func Expression(expr string) AccessExpr {
	return AccessExpr{Expression: expr}
}

// IsExpression reports whether the requirement is an opaque expression.
func (e AccessExpr) IsExpression() bool {
	return e.Expression != ""
}

// IsEmpty reports whether the requirement imposes no restriction.
func (e AccessExpr) IsEmpty() bool {
	return e.Expression == "" && len(e.Authorities) == 0
}

func (e AccessExpr) String() string {
	if e.IsExpression() {
		return e.Expression
	}
	if len(e.Authorities) == 0 {
		return "<public>"
	}
	return strings.Join(e.Authorities, ",")
}

// SourceKind identifies a rule's origin. The zero value is the
// static-declaration (annotation) source.
type SourceKind int

const (
	// SourceAnnotation is the static-declaration source: rules derived
	// from structural metadata, case-preserving, read-only after startup.
	SourceAnnotation SourceKind = iota
	// SourceInterceptMap is the configuration-map source: rules parsed
	// from configured entries, lowercased.
	SourceInterceptMap
	// SourceRequestmap is the dynamic-store source: rules loaded from a
	// mutable backing store, lowercased, explicitly invalidated.
	SourceRequestmap
)

// Rank orders sources for specificity tie-breaks: static-declaration rules
// before configuration-map rules before dynamic-store rules.
func (k SourceKind) Rank() int { return int(k) }

func (k SourceKind) String() string {
	switch k {
	case SourceAnnotation:
		return "annotation"
	case SourceInterceptMap:
		return "interceptmap"
	case SourceRequestmap:
		return "requestmap"
	default:
		return fmt.Sprintf("sourcekind(%d)", int(k))
	}
}

// Configuration names for the three source kinds, as accepted by the
// security.config_type setting.
const (
	ConfigTypeAnnotation          = "Annotation"
	ConfigTypeMap                 = "Map"
	ConfigTypeRequestmapInstances = "RequestmapInstances"
)

// ParseConfigType maps a security.config_type value to the source kind it
// selects. Exactly one kind is primary per configuration.
func ParseConfigType(s string) (SourceKind, error) {
	switch s {
	case ConfigTypeAnnotation:
		return SourceAnnotation, nil
	case ConfigTypeMap:
		return SourceInterceptMap, nil
	case ConfigTypeRequestmapInstances:
		return SourceRequestmap, nil
	default:
		return 0, fmt.Errorf("unknown security config type %q (want %s, %s, or %s)",
			s, ConfigTypeAnnotation, ConfigTypeMap, ConfigTypeRequestmapInstances)
	}
}

// Rule maps a URL pattern, and optionally an HTTP method, to an access
// requirement.
type Rule struct {
	// Pattern is an Ant-style glob: non-empty, starts with "/".
	Pattern string
	// HTTPMethod restricts the rule to one method when set ("GET", "PUT", ...).
	// Empty means any method.
	HTTPMethod string
	// Access is the requirement enforced when this rule matches.
	Access AccessExpr
	// Source records where the rule came from.
	Source SourceKind
}

// RuleEntry is the unnormalized form of a rule as it appears in
// configuration or an import file: the access value may hold a single
// token, a single expression, or a list of tokens.
type RuleEntry struct {
	Pattern    string
	Access     []string
	HTTPMethod string
}

// Subject is the already-identified caller: granted authorities plus
// authentication state. Establishing a Subject is the authentication
// subsystem's job; the core only consumes it.
type Subject struct {
	// Authorities are the caller's granted authority names.
	Authorities []string
	// Authenticated is true when the caller holds any authentication,
	// including a persistent-login token.
	Authenticated bool
	// RememberMe is true when the authentication came from a
	// persistent-login token rather than an explicit login.
	RememberMe bool
	// FullyAuthenticated is true when the caller logged in explicitly in
	// this session.
	FullyAuthenticated bool
}

// HasAuthority reports whether the subject holds the named authority.
func (s Subject) HasAuthority(name string) bool {
	for _, a := range s.Authorities {
		if a == name {
			return true
		}
	}
	return false
}

// SortedAuthorities returns the subject's authorities in sorted order
// without mutating the subject. Used for deterministic cache keys.
func (s Subject) SortedAuthorities() []string {
	out := make([]string, len(s.Authorities))
	copy(out, s.Authorities)
	sort.Strings(out)
	return out
}

// Outcome classifies the result of resolving one request.
type Outcome string

const (
	// OutcomeMatched means a rule matched (or lockdown granted implicit
	// public access); Decision.Requirement carries the access requirement.
	OutcomeMatched Outcome = "matched"
	// OutcomeDeniedNoRule means no rule matched and the lockdown policy
	// rejects uncovered requests.
	OutcomeDeniedNoRule Outcome = "denied_no_rule"
	// OutcomeConfigErrorNoRule means no rule matched and the lockdown
	// policy treats that as missing configuration, not an unauthorized
	// caller.
	OutcomeConfigErrorNoRule Outcome = "config_error_no_rule"
)

// Decision is the result of resolving one request. Produced fresh per
// resolution; carries no persistent state.
type Decision struct {
	Outcome Outcome
	// Requirement is the matched rule's access requirement. Only
	// meaningful when Outcome is OutcomeMatched; empty means public.
	Requirement AccessExpr
	// Pattern is the matched rule's pattern, empty on lockdown outcomes.
	Pattern string
	// Reason explains the decision.
	Reason string
}

// Matched reports whether the decision carries an access requirement to
// evaluate (including the implicit public one).
func (d Decision) Matched() bool { return d.Outcome == OutcomeMatched }

// Authorization is the final verdict for one request: the resolution
// decision plus whether the caller satisfied the requirement.
type Authorization struct {
	Decision Decision
	Allowed  bool
}

// LockdownPolicy governs behavior when no rule matches a request.
type LockdownPolicy struct {
	// RejectIfNoRule denies uncovered requests. Default true. When true,
	// RejectPublicInvocations is not consulted.
	RejectIfNoRule bool
	// RejectPublicInvocations treats uncovered requests as a hard
	// configuration error. Default true. Ignored while RejectIfNoRule is
	// true.
	RejectPublicInvocations bool
}

// DefaultLockdownPolicy returns the locked-down defaults: both switches on,
// so uncovered requests are denied.
func DefaultLockdownPolicy() LockdownPolicy {
	return LockdownPolicy{RejectIfNoRule: true, RejectPublicInvocations: true}
}

// Effective normalizes the policy so only one switch is ever active:
// RejectIfNoRule silently overrides RejectPublicInvocations. Simultaneous
// true values are an override, not a fault.
func (p LockdownPolicy) Effective() LockdownPolicy {
	if p.RejectIfNoRule {
		p.RejectPublicInvocations = false
	}
	return p
}

// Decide produces the decision for a request no rule matched. Pure function
// of the two switches.
func (p LockdownPolicy) Decide(method, path string) Decision {
	p = p.Effective()
	switch {
	case p.RejectIfNoRule:
		return Decision{
			Outcome: OutcomeDeniedNoRule,
			Reason:  fmt.Sprintf("no rule covers %s %s (reject_if_no_rule)", method, path),
		}
	case p.RejectPublicInvocations:
		return Decision{
			Outcome: OutcomeConfigErrorNoRule,
			Reason:  fmt.Sprintf("no rule covers %s %s (reject_public_invocations)", method, path),
		}
	default:
		return Decision{
			Outcome: OutcomeMatched,
			Reason:  "no matching rule (public access)",
		}
	}
}
