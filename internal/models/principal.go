package models

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleDriver  Role = "driver"
	RoleClerk   Role = "clerk"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDriver, RoleClerk:
		return true
	}
	return false
}

// CanWrite reports whether the role may mutate shipment records.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleManager
}

// Principal is the authenticated caller, derived from a bearer token.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
