package security

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/credvault/internal/domain"
)

// Action identifies what operation is being authorized
type Action string

const (
	ActionListDivisions    Action = "list_divisions"
	ActionReadCredentials  Action = "read_credentials"
	ActionCreateCredential Action = "create_credential"
	ActionUpdateCredential Action = "update_credential"
	ActionManageUsers      Action = "manage_users"
)

// Rule names the decision rule that produced an authorization outcome
type Rule string

const (
	RuleAdminBypass        Rule = "admin_bypass"
	RuleDivisionMembership Rule = "division_membership"
	RuleRoleGate           Rule = "role_gate"
	RuleAdminOnly          Rule = "admin_only"
	RuleScopeFilter        Rule = "scope_filter"
)

// Principal is an authenticated actor: role plus membership sets, captured
// as a point-in-time snapshot when the request was authenticated. The engine
// never reads ambient state; every decision is a function of this value.
type Principal struct {
	UserID    string
	Username  string
	Role      domain.Role
	Divisions []string // Division IDs the principal is a member of
	Units     []string // Unit IDs the principal is a member of
}

// MemberOfDivision reports whether the principal's division set contains id.
func (p Principal) MemberOfDivision(id string) bool {
	for _, d := range p.Divisions {
		if d == id {
			return true
		}
	}
	return false
}

// PrincipalFromUser builds a principal snapshot from a stored user record.
func PrincipalFromUser(u *domain.User) Principal {
	return Principal{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Divisions: append([]string(nil), u.Divisions...),
		Units:     append([]string(nil), u.Units...),
	}
}

// Target identifies what an action operates on. DivisionID is required for
// credential read/create; other actions ignore it.
type Target struct {
	DivisionID string
}

// Scope is the visible-division subset for a principal. All=true means
// unrestricted (admin); otherwise DivisionIDs is the exact visible set.
type Scope struct {
	All         bool
	DivisionIDs []string
}

// Contains reports whether a division is inside the scope.
func (s Scope) Contains(divisionID string) bool {
	if s.All {
		return true
	}
	for _, id := range s.DivisionIDs {
		if id == divisionID {
			return true
		}
	}
	return false
}

// Decision is the outcome of an authorization check. Rule names the first
// matching rule; Reason is set only on denial.
type Decision struct {
	Allowed bool
	Rule    Rule
	Reason  string
}

// Engine is the authorization decision function. It is stateless and
// reentrant: safe for unlimited concurrent use with no locking.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an authorization engine
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// DivisionScope resolves the visible-division subset for a principal.
// Admins see everything; everyone else sees exactly their division
// memberships. Unit memberships grant no division visibility.
func (e *Engine) DivisionScope(p Principal) Scope {
	if p.Role == domain.RoleAdmin {
		return Scope{All: true}
	}
	return Scope{DivisionIDs: append([]string(nil), p.Divisions...)}
}

// Authorize decides whether the principal may perform action on target.
// A non-nil error means the caller passed a malformed pair (unknown action,
// or a division-scoped action without a division); that is a programming
// defect, not an authorization outcome.
func (e *Engine) Authorize(p Principal, action Action, target Target) (Decision, error) {
	switch action {
	case ActionReadCredentials, ActionCreateCredential:
		if target.DivisionID == "" {
			return Decision{}, fmt.Errorf("action %s requires a division target", action)
		}
		if p.Role == domain.RoleAdmin {
			return Decision{Allowed: true, Rule: RuleAdminBypass}, nil
		}
		if p.MemberOfDivision(target.DivisionID) {
			return Decision{Allowed: true, Rule: RuleDivisionMembership}, nil
		}
		return e.deny(p, action, RuleDivisionMembership,
			fmt.Sprintf("not a member of division %s", target.DivisionID)), nil

	case ActionUpdateCredential:
		// Role-gated only: any management or admin principal may update,
		// regardless of division membership. Normal users are denied even
		// for divisions they belong to.
		if p.Role == domain.RoleManagement || p.Role == domain.RoleAdmin {
			return Decision{Allowed: true, Rule: RuleRoleGate}, nil
		}
		return e.deny(p, action, RuleRoleGate, "only management can update credentials"), nil

	case ActionManageUsers:
		if p.Role == domain.RoleAdmin {
			return Decision{Allowed: true, Rule: RuleAdminOnly}, nil
		}
		return e.deny(p, action, RuleAdminOnly, "admin access required"), nil

	case ActionListDivisions:
		// Any authenticated principal may list; the result is filtered to
		// DivisionScope, never denied.
		return Decision{Allowed: true, Rule: RuleScopeFilter}, nil

	default:
		return Decision{}, fmt.Errorf("unknown action %q", action)
	}
}

func (e *Engine) deny(p Principal, action Action, rule Rule, reason string) Decision {
	e.logger.Warn("authorization denied",
		slog.String("user_id", p.UserID),
		slog.String("role", string(p.Role)),
		slog.String("action", string(action)),
		slog.String("rule", string(rule)),
	)
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}
