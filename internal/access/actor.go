package access

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleManager      Role = "manager"
	RolePractitioner Role = "practitioner"
	RoleAssistant    Role = "assistant"

	// RoleSystem is used by background workers applying time-based
	// transitions. It bypasses permission checks like admin but shows up
	// distinctly in the audit trail.
	RoleSystem Role = "system"
)

// Operation names used in permission keys and audit entries.
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Resource names used in permission keys and audit entries.
const (
	ResourceAppointment = "appointment"
	ResourcePatient     = "patient"
	ResourceCabinet     = "cabinet"
)

// Permission builds a "<resource>:<operation>" key.
func Permission(resource, operation string) string {
	return resource + ":" + operation
}

// rolePermissions holds the default grants per role. Admin and system are
// handled before this table is consulted.
var rolePermissions = map[Role]map[string]struct{}{
	RoleManager: permSet(
		Permission(ResourceAppointment, OpCreate),
		Permission(ResourceAppointment, OpRead),
		Permission(ResourceAppointment, OpUpdate),
		Permission(ResourceAppointment, OpDelete),
		Permission(ResourcePatient, OpCreate),
		Permission(ResourcePatient, OpRead),
		Permission(ResourcePatient, OpUpdate),
		Permission(ResourcePatient, OpDelete),
	),
	RolePractitioner: permSet(
		Permission(ResourceAppointment, OpRead),
		Permission(ResourceAppointment, OpUpdate),
		Permission(ResourcePatient, OpRead),
	),
	RoleAssistant: permSet(
		Permission(ResourceAppointment, OpCreate),
		Permission(ResourceAppointment, OpRead),
		Permission(ResourceAppointment, OpUpdate),
		Permission(ResourcePatient, OpRead),
	),
}

func permSet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Actor is the calling identity for every operation. It is built once per
// authenticated request from session claims and never persisted here.
type Actor struct {
	UserID           string
	Role             Role
	AssignedCabinets []uuid.UUID
	Grants           []string // explicit permission keys beyond role defaults
}

// System is the actor the reminder sweep acts as.
var System = Actor{UserID: "system", Role: RoleSystem}

func (a Actor) isPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// HasPermission reports whether the actor's effective permission set (role
// defaults plus explicit grants) contains the key. Admin always passes.
func (a Actor) HasPermission(key string) bool {
	if a.isPrivileged() {
		return true
	}
	if defaults, ok := rolePermissions[a.Role]; ok {
		if _, ok := defaults[key]; ok {
			return true
		}
	}
	for _, g := range a.Grants {
		if g == key {
			return true
		}
	}
	return false
}

func (a Actor) isAssigned(cabinetID uuid.UUID) bool {
	for _, id := range a.AssignedCabinets {
		if id == cabinetID {
			return true
		}
	}
	return false
}
