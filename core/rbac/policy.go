// Package rbac implements spec §4.2's Authorization Policy as a pure
// table over a casbin RBAC model, matching the teacher's go.mod
// casbin/v2 dependency and the policy.Allowed(role, perm) call shape
// used throughout api/middleware.go.
package rbac

import (
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermIncidentCreate     Permission = "incident.create"
	PermIncidentUpdate     Permission = "incident.update"
	PermIncidentAssign     Permission = "incident.assign"
	PermIncidentNote       Permission = "incident.note"
	PermIncidentActionItem Permission = "incident.action_item"
	PermUserManage         Permission = "user.manage"
	PermRead               Permission = "read"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// Policy wraps an in-memory casbin enforcer seeded at startup from a
// fixed, code-defined rule set — there is no external policy store,
// matching spec §4.2's "pure table" framing.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(false)
	p := &Policy{enforcer: enforcer}
	p.seed()
	return p, nil
}

func (p *Policy) seed() {
	writerPerms := []Permission{
		PermIncidentCreate, PermIncidentUpdate, PermIncidentAssign,
		PermIncidentNote, PermIncidentActionItem, PermRead,
	}
	for _, perm := range writerPerms {
		_, _ = p.enforcer.AddPolicy("writer", string(perm))
		_, _ = p.enforcer.AddPolicy("admin", string(perm))
	}
	_, _ = p.enforcer.AddPolicy("admin", string(PermUserManage))
	_, _ = p.enforcer.AddPolicy("reader", string(PermRead))

	_, _ = p.enforcer.AddGroupingPolicy("admin", "admin")
	_, _ = p.enforcer.AddGroupingPolicy("admin", "writer")
	_, _ = p.enforcer.AddGroupingPolicy("admin", "reader")
	_, _ = p.enforcer.AddGroupingPolicy("responder", "writer")
	_, _ = p.enforcer.AddGroupingPolicy("responder", "reader")
	_, _ = p.enforcer.AddGroupingPolicy("viewer", "reader")
}

// Allowed reports whether role may perform perm. Viewers may only
// read; writers are admin or responder; user.manage is admin-only.
func (p *Policy) Allowed(role string, perm Permission) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	ok, err := p.enforcer.Enforce(role, string(perm))
	if err != nil {
		return false
	}
	return ok
}

// IsWriter reports whether role ∈ {admin, responder}.
func IsWriter(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "admin", "responder":
		return true
	default:
		return false
	}
}
