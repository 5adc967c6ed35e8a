package types

import (
	"slices"
	"time"
)

type Role string

const (
	RoleScanner    Role = "scanner"
	RoleSupervisor Role = "supervisor"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// Wildcard matches any action or resource in a Permission.
const Wildcard = "*"

type Permission struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// Matches reports whether p covers action on resource.
func (p Permission) Matches(action, resource string) bool {
	return (p.Action == Wildcard || p.Action == action) &&
		(p.Resource == Wildcard || p.Resource == resource)
}

var rolePermissions = map[Role][]Permission{
	RoleScanner: {
		{Action: "scan", Resource: "ticket"},
		{Action: "view", Resource: "ticket"},
	},
	RoleSupervisor: {
		{Action: "scan", Resource: "ticket"},
		{Action: "view", Resource: "ticket"},
		{Action: "override", Resource: "validation"},
		{Action: "view", Resource: "report"},
	},
	RoleManager: {
		{Action: "scan", Resource: Wildcard},
		{Action: "view", Resource: Wildcard},
		{Action: "override", Resource: "validation"},
		{Action: "update", Resource: "attendance"},
		{Action: "manage", Resource: "staff"},
	},
	RoleAdmin: {
		{Action: Wildcard, Resource: Wildcard},
	},
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// PermissionsFor returns a copy of the fixed permission set for r.
// Unknown roles get nil.
func PermissionsFor(r Role) []Permission {
	return slices.Clone(rolePermissions[r])
}

// StaffMember is a cached staff record. Permissions are derived from Role.
type StaffMember struct {
	StaffID     string       `json:"staff_id"`
	Name        string       `json:"name,omitempty"`
	Role        Role         `json:"role"`
	EventIDs    []string     `json:"event_ids"`
	GateIDs     []string     `json:"gate_ids"`
	Permissions []Permission `json:"permissions,omitempty"`
	IsActive    bool         `json:"is_active"`
	LastLogin   *time.Time   `json:"last_login,omitempty"`
}

// WithDerivedPermissions returns s with Permissions recomputed from Role.
func (s StaffMember) WithDerivedPermissions() StaffMember {
	s.Permissions = PermissionsFor(s.Role)
	return s
}

func (s StaffMember) HasEvent(eventID string) bool { return slices.Contains(s.EventIDs, eventID) }

func (s StaffMember) HasGate(gateID string) bool { return slices.Contains(s.GateIDs, gateID) }

// AccessContext narrows an authorization check to a gate and/or event.
type AccessContext struct {
	GateID  string `json:"gate_id,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// AccessLogEntry is one audited authorization attempt.
type AccessLogEntry struct {
	ID       int64     `json:"id,omitempty"`
	StaffID  string    `json:"staff_id"`
	Action   string    `json:"action"`
	Resource string    `json:"resource"`
	GateID   string    `json:"gate_id,omitempty"`
	EventID  string    `json:"event_id,omitempty"`
	Granted  bool      `json:"granted"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}
