package rbac

import (
	"errors"
	"fmt"

	"github.com/memopsy/memopsy/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrDuplicate indicates a (module, action) pair that already exists.
	ErrDuplicate = fmt.Errorf("rbac: permission %w", httpx.ErrDuplicate)
	// ErrForbidden is returned by Set.Require when a permission is missing.
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
	// ErrUnknownModule indicates a module name outside the known catalog.
	ErrUnknownModule = errors.New("rbac: unknown module")
	// ErrUnknownAction indicates an action name outside the known catalog.
	ErrUnknownAction = errors.New("rbac: unknown action")
)

// Module identifies a feature area of the clinic application.
type Module uint8

// Known modules. New feature areas must be added here and to the catalog seed.
const (
	ModuleUnknown Module = iota
	ModuleUsers
	ModuleProfiles
	ModulePermissions
	ModulePeople
	ModulePatients
	ModulePsychologists
	ModuleSessions
	ModuleReports
)

// Modules lists every known module in catalog order.
func Modules() []Module {
	return []Module{
		ModuleUsers,
		ModuleProfiles,
		ModulePermissions,
		ModulePeople,
		ModulePatients,
		ModulePsychologists,
		ModuleSessions,
		ModuleReports,
	}
}

// String returns the catalog name of the module.
func (m Module) String() string {
	switch m {
	case ModuleUsers:
		return "Usuarios"
	case ModuleProfiles:
		return "Perfiles"
	case ModulePermissions:
		return "Permisos"
	case ModulePeople:
		return "Personas"
	case ModulePatients:
		return "Pacientes"
	case ModulePsychologists:
		return "Psicólogos"
	case ModuleSessions:
		return "Sesiones"
	case ModuleReports:
		return "Informes"
	case ModuleUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Module(%d)", uint8(m))
}

// Valid reports whether m is one of the known modules.
func (m Module) Valid() bool {
	return m > ModuleUnknown && m <= ModuleReports
}

// Action identifies an operation performed on a module.
type Action uint8

// Known actions.
const (
	ActionUnknown Action = iota
	ActionView
	ActionCreate
	ActionEdit
	ActionDelete
)

// Actions lists every known action in catalog order.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}
}

// String returns the catalog name of the action.
func (a Action) String() string {
	switch a {
	case ActionView:
		return "Ver"
	case ActionCreate:
		return "Crear"
	case ActionEdit:
		return "Editar"
	case ActionDelete:
		return "Eliminar"
	case ActionUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a > ActionUnknown && a <= ActionDelete
}

// Permission is an atomic capability. Its identity is the (Module, Action) pair.
type Permission struct {
	Module Module
	Action Action
}

// P is shorthand for building a Permission.
func P(m Module, a Action) Permission {
	return Permission{Module: m, Action: a}
}

// Valid reports whether both halves of the pair are known.
func (p Permission) Valid() bool {
	return p.Module.Valid() && p.Action.Valid()
}

func (p Permission) String() string {
	return p.Module.String() + ":" + p.Action.String()
}

// ParsePermission resolves catalog names into a Permission.
func ParsePermission(module, action string) (Permission, error) {
	m, err := ParseModule(module)
	if err != nil {
		return Permission{}, err
	}
	a, err := ParseAction(action)
	if err != nil {
		return Permission{}, err
	}
	return Permission{Module: m, Action: a}, nil
}

// Profile is a named bundle of permissions assignable to users.
type Profile struct {
	ID          int64
	Name        string
	Description string
	Permissions []Permission
}

// Ref returns the lightweight reference embedded in sessions.
func (p Profile) Ref() ProfileRef {
	return ProfileRef{ID: p.ID, Name: p.Name}
}

// ProfileRef identifies a profile without its permissions.
type ProfileRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CatalogEntry describes a module or action row from the catalog tables.
type CatalogEntry struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CatalogPermission is a persisted permission row.
type CatalogPermission struct {
	ID         int64  `json:"id"`
	ModuleID   int64  `json:"moduleId"`
	ModuleName string `json:"module"`
	ActionID   int64  `json:"actionId"`
	ActionName string `json:"action"`
}

// Permission resolves the row into its typed identity.
func (c CatalogPermission) Permission() (Permission, error) {
	return ParsePermission(c.ModuleName, c.ActionName)
}
