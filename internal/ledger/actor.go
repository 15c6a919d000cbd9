package ledger

import "strings"

// Roles known to the ledger.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// Actor identifies the caller on whose behalf a change is made.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// EffectiveRole returns the role used for policy checks.
func (a Actor) EffectiveRole() string {
	role := strings.TrimSpace(strings.ToLower(a.Role))
	if role == "" {
		return RoleCashier
	}
	return role
}

// Privileged reports whether the actor holds the privileged role.
func (a Actor) Privileged(privilegedRole string) bool {
	if privilegedRole == "" {
		privilegedRole = RoleAdmin
	}
	return a.EffectiveRole() == strings.ToLower(privilegedRole)
}
