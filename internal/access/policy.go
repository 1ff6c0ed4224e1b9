package access

import (
	"fmt"
	"strconv"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type Capability string

const (
	CapOrderChangeStatus Capability = "order:change_status"
	CapOrderView         Capability = "order:view"
	CapOrderStats        Capability = "order:view_stats"
	CapOrderCleanup      Capability = "order:cleanup"
	CapReviewModerate    Capability = "review:moderate"
	CapReviewDelete      Capability = "review:delete"
	CapAnalyticsView     Capability = "analytics:view"
	CapQRGenerate        Capability = "qr:generate"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// DefaultRoleCapabilities is the role table loaded into the enforcer.
var DefaultRoleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapOrderChangeStatus, CapOrderView, CapOrderStats, CapOrderCleanup,
		CapReviewModerate, CapReviewDelete, CapAnalyticsView, CapQRGenerate,
	},
	RoleManager: {CapReviewModerate, CapAnalyticsView, CapOrderView},
	RoleStaff:   {CapOrderChangeStatus, CapOrderView},
}

const rbacModel = `
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

// Policy answers hasCapability questions for Telegram user ids.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(roles map[Role][]Capability) (*Policy, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for role, caps := range roles {
		for _, c := range caps {
			if _, err := enforcer.AddPolicy(string(role), string(c)); err != nil {
				return nil, fmt.Errorf("add policy %s %s: %w", role, c, err)
			}
		}
	}

	return &Policy{enforcer: enforcer}, nil
}

func (p *Policy) Assign(actorID int64, role Role) error {
	if _, err := p.enforcer.AddRoleForUser(subject(actorID), string(role)); err != nil {
		return fmt.Errorf("assign role %s to %d: %w", role, actorID, err)
	}
	return nil
}

func (p *Policy) AssignAll(actorIDs []int64, role Role) error {
	for _, id := range actorIDs {
		if err := p.Assign(id, role); err != nil {
			return err
		}
	}
	return nil
}

// HasCapability reports false on evaluation errors.
func (p *Policy) HasCapability(actorID int64, c Capability) bool {
	ok, err := p.enforcer.Enforce(subject(actorID), string(c))
	if err != nil {
		return false
	}
	return ok
}

func (p *Policy) Roles(actorID int64) []Role {
	names, err := p.enforcer.GetRolesForUser(subject(actorID))
	if err != nil {
		return nil
	}
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		roles = append(roles, Role(n))
	}
	return roles
}

func subject(actorID int64) string {
	return "user:" + strconv.FormatInt(actorID, 10)
}

// Checker is the narrow view the services depend on.
type Checker interface {
	HasCapability(actorID int64, c Capability) bool
}

// Require returns an AuthorizationError when actorID lacks c.
func Require(checker Checker, actorID int64, c Capability) error {
	if checker == nil || !checker.HasCapability(actorID, c) {
		return &domain.AuthorizationError{ActorID: actorID, Capability: string(c)}
	}
	return nil
}
