package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// RBAC handles role-based access control using Casbin
type RBAC struct {
	enforcer *casbin.Enforcer
}

// Subject represents an entity that can perform actions
type Subject struct {
	ID   string
	Type string // "user", "role", "scope", "service"
}

// Object represents a resource that can be acted upon
type Object struct {
	Type string // "experiment", "analytics"
	ID   string
}

const (
	ObjectExperiment = "experiment"
	ObjectAnalytics  = "analytics"
)

// Action represents an action that can be performed
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Role represents a role in the system
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// NewRBAC creates a new RBAC instance with default policies
func NewRBAC() (*RBAC, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	rbac := &RBAC{
		enforcer: enforcer,
	}

	if err := rbac.loadDefaultPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load default policies: %w", err)
	}

	return rbac, nil
}

func (r *RBAC) loadDefaultPolicies() error {
	policies := [][]string{
		{"role:owner", "experiment:*", "^(create|read|update|delete)$"},
		{"role:owner", "analytics:*", "^read$"},

		{"role:admin", "experiment:*", "^(create|read|update|delete)$"},
		{"role:admin", "analytics:*", "^read$"},

		// Editors design experiments but cannot remove them
		{"role:editor", "experiment:*", "^(create|read|update)$"},
		{"role:editor", "analytics:*", "^read$"},

		{"role:viewer", "experiment:*", "^read$"},
		{"role:viewer", "analytics:*", "^read$"},

		// API key and service token scopes
		{"scope:read", "experiment:*", "^read$"},
		{"scope:read", "analytics:*", "^read$"},

		{"scope:write", "experiment:*", "^(create|read|update)$"},
		{"scope:write", "analytics:*", "^read$"},
	}

	for _, policy := range policies {
		if _, err := r.enforcer.AddPolicy(policy); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", policy, err)
		}
	}

	return nil
}

// Enforce checks if a subject can perform an action on an object
func (r *RBAC) Enforce(subject Subject, object Object, action Action) (bool, error) {
	allowed, err := r.enforcer.Enforce(formatSubject(subject), formatObject(object), string(action))
	if err != nil {
		return false, fmt.Errorf("enforcement error: %w", err)
	}

	return allowed, nil
}

// AssignRole assigns a role to a subject
func (r *RBAC) AssignRole(subject Subject, role Role) error {
	if !r.ValidateRole(string(role)) {
		return fmt.Errorf("unknown role: %s", role)
	}
	if _, err := r.enforcer.AddRoleForUser(formatSubject(subject), formatRole(role)); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	return nil
}

// RemoveRole removes a role from a subject
func (r *RBAC) RemoveRole(subject Subject, role Role) error {
	if _, err := r.enforcer.DeleteRoleForUser(formatSubject(subject), formatRole(role)); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}

	return nil
}

// HasRole checks if a subject has a specific role
func (r *RBAC) HasRole(subject Subject, role Role) (bool, error) {
	hasRole, err := r.enforcer.HasRoleForUser(formatSubject(subject), formatRole(role))
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}

	return hasRole, nil
}

// GetPolicies returns all policies
func (r *RBAC) GetPolicies() [][]string {
	return r.enforcer.GetPolicy()
}

// ValidateRole validates if a role string is valid
func (r *RBAC) ValidateRole(role string) bool {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

func formatSubject(subject Subject) string {
	return fmt.Sprintf("%s:%s", subject.Type, subject.ID)
}

func formatObject(object Object) string {
	return fmt.Sprintf("%s:%s", object.Type, object.ID)
}

func formatRole(role Role) string {
	return "role:" + string(role)
}
