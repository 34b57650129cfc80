package enum

// Role is a dashboard account role. Roles form a total order by Rank.
type Role string

const (
	// RoleStaff may file reports and block requests.
	RoleStaff Role = "STAFF"
	// RoleIngameAdmin may resolve tickets and issue permanent bans.
	RoleIngameAdmin Role = "INGAME_ADMIN"
	// RoleMaster may administer accounts below its rank.
	RoleMaster Role = "MASTER"
	// RoleSuperMaster may administer every account except the root.
	RoleSuperMaster Role = "SUPERMASTER"
)

// Roles lists every role from lowest to highest rank.
var Roles = []Role{RoleStaff, RoleIngameAdmin, RoleMaster, RoleSuperMaster}

// Rank returns the position of the role in the hierarchy, starting at 1.
// Unknown roles rank 0 and are never allowed anything.
func (r Role) Rank() int {
	switch r {
	case RoleStaff:
		return 1
	case RoleIngameAdmin:
		return 2
	case RoleMaster:
		return 3
	case RoleSuperMaster:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether the role ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() > 0 && r.Rank() >= other.Rank()
}

// IsValid reports whether the role is a known role.
func (r Role) IsValid() bool {
	return r.Rank() > 0
}

func (r Role) String() string {
	return string(r)
}
