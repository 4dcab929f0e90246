package directory

import "strings"

// Role is the platform role carried on a user record. Tokens embed a copy,
// but authorization always re-reads the live record.
type Role string

const (
	RoleSuperAdmin     Role = "superadmin"
	RoleSuperModerator Role = "supermoderator"
	RoleLandlord       Role = "landlord"
	RoleAgent          Role = "agent"
	RoleTenant         Role = "tenant"
)

// Elevated reports whether the role is a platform-operator role that skips
// organization subscription gating entirely.
func (r Role) Elevated() bool {
	return r == RoleSuperAdmin || r == RoleSuperModerator
}

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleSuperModerator, RoleLandlord, RoleAgent, RoleTenant:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a raw role string. Unknown values map to the empty
// role, which never authorizes anything.
func ParseRole(raw string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return ""
	}
	return role
}

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusPending   AccountStatus = "pending"
)

// User is the live directory record, the authoritative source of role and
// status for authorization decisions.
type User struct {
	ID     string
	Email  string
	Role   Role
	Status AccountStatus
	OrgID  string // empty for platform accounts with no organization
}
