package gourdianauth

import "fmt"

// Built-in role and policy names.
const (
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"

	PolicyRequireAdminRole     = "RequireAdminRole"
	PolicyRequireModeratorRole = "RequireModeratorRole"
)

// Authorizer decides whether a claim set satisfies a policy.
type Authorizer interface {
	Allows(claims *ClaimSet) bool
}

// Policy is a declarative requirement over roles and claims.
//
// Fields:
//   - AnyRole: The claim set must carry at least one of these roles (ignored when empty)
//   - Claims: Every listed custom claim must be present with the given value
//
// A Policy with neither requirement never allows anything.
type Policy struct {
	AnyRole []string
	Claims  map[string]string
}

// Allows implements Authorizer.
func (p Policy) Allows(claims *ClaimSet) bool {
	if len(p.AnyRole) == 0 && len(p.Claims) == 0 {
		return false
	}
	if len(p.AnyRole) > 0 {
		matched := false
		for _, role := range p.AnyRole {
			if claims.HasRole(role) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for key, want := range p.Claims {
		if got, ok := claims.Custom[key]; !ok || got != want {
			return false
		}
	}
	return true
}

// PolicyFunc adapts a function to Authorizer.
type PolicyFunc func(claims *ClaimSet) bool

// Allows implements Authorizer.
func (f PolicyFunc) Allows(claims *ClaimSet) bool {
	return f(claims)
}

// RequireRole returns a Policy satisfied by any of roles.
func RequireRole(roles ...string) Policy {
	return Policy{AnyRole: copyRoles(roles)}
}

// RequireClaim returns a Policy satisfied when custom claim key equals value.
func RequireClaim(key, value string) Policy {
	return Policy{Claims: map[string]string{key: value}}
}

// DefaultPolicies returns the built-in role policies.
func DefaultPolicies() map[string]Authorizer {
	return map[string]Authorizer{
		PolicyRequireAdminRole:     RequireRole(RoleAdmin),
		PolicyRequireModeratorRole: RequireRole(RoleModerator),
	}
}

// PolicyEvaluator holds a fixed registry of named policies. It is safe for
// concurrent use; the registry cannot change after construction.
type PolicyEvaluator struct {
	policies map[string]Authorizer
}

// NewPolicyEvaluator returns an evaluator over a copy of policies. Nil
// entries are skipped.
func NewPolicyEvaluator(policies map[string]Authorizer) *PolicyEvaluator {
	registry := make(map[string]Authorizer, len(policies))
	for name, policy := range policies {
		if policy != nil {
			registry[name] = policy
		}
	}
	return &PolicyEvaluator{policies: registry}
}

// PoliciesFromRoles builds role policies from a configuration mapping of
// policy name to roles.
func PoliciesFromRoles(roles map[string][]string) map[string]Authorizer {
	policies := make(map[string]Authorizer, len(roles))
	for name, r := range roles {
		policies[name] = RequireRole(r...)
	}
	return policies
}

// Evaluate reports whether claims satisfy the named policy. Unknown policies
// and nil claims are denied.
func (e *PolicyEvaluator) Evaluate(claims *ClaimSet, name string) bool {
	if claims == nil {
		return false
	}
	policy, ok := e.policies[name]
	if !ok {
		return false
	}
	return policy.Allows(claims)
}

// Authorize is Evaluate returning ErrPolicyDenied on denial.
func (e *PolicyEvaluator) Authorize(claims *ClaimSet, name string) error {
	if !e.Evaluate(claims, name) {
		return fmt.Errorf("%w: %s", ErrPolicyDenied, name)
	}
	return nil
}

// Has reports whether a policy is registered under name.
func (e *PolicyEvaluator) Has(name string) bool {
	_, ok := e.policies[name]
	return ok
}
