// Package permission implements the role/resource/action grant matrix used
// for authorization decisions. The flat entry list stored in the database is
// the canonical representation; the nested matrix consumed by the settings
// screen is derived through the pure transforms in matrix.go.
package permission

import (
	"time"

	"estateflow/auth"
)

type Resource string

const (
	ResourceClient      Resource = "client"
	ResourceListing     Resource = "listing"
	ResourceAppointment Resource = "appointment"
	ResourceDeal        Resource = "deal"
	ResourceContract    Resource = "contract"
	ResourceVoucher     Resource = "voucher"
	ResourcePermission  Resource = "permission"
)

type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Entry is one (role, resource, action) grant. Unique per triple;
// last-writer-wins on update.
type Entry struct {
	Role      auth.Role `json:"role"`
	Resource  Resource  `json:"resource"`
	Action    Action    `json:"action"`
	Granted   bool      `json:"granted"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Matrix is the nested role -> resource -> action representation exchanged
// with the HTTP layer.
type Matrix map[auth.Role]map[Resource]map[Action]bool

func validResource(r Resource) bool {
	switch r {
	case ResourceClient, ResourceListing, ResourceAppointment, ResourceDeal,
		ResourceContract, ResourceVoucher, ResourcePermission:
		return true
	default:
		return false
	}
}

func validAction(a Action) bool {
	switch a {
	case ActionView, ActionAdd, ActionEdit, ActionDelete:
		return true
	default:
		return false
	}
}

func validRole(r auth.Role) bool {
	switch r {
	case auth.RoleAgent, auth.RoleManager, auth.RoleAdmin:
		return true
	default:
		return false
	}
}
