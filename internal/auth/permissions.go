package auth

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleReadonly = "readonly"
)

// Permission modules correspond to the dashboard's sections.
const (
	ModuleClients   = "clients"
	ModuleQuotes    = "quotes"
	ModuleProjects  = "projects"
	ModuleInventory = "inventory"
	ModuleSuppliers = "suppliers"
	ModuleWorkers   = "workers"
	ModuleTransport = "transport"
	ModuleInvoices  = "invoices"
	ModuleFinance   = "finance"
	ModuleReports   = "reports"
	ModuleSettings  = "settings"
	ModuleAdmin     = "admin"
)

// Permission actions.
const (
	PermActionView    = "view"
	PermActionCreate  = "create"
	PermActionEdit    = "edit"
	PermActionDelete  = "delete"
	PermActionApprove = "approve"
)

// AllModules lists every module.
var AllModules = []string{
	ModuleClients, ModuleQuotes, ModuleProjects, ModuleInventory, ModuleSuppliers,
	ModuleWorkers, ModuleTransport, ModuleInvoices, ModuleFinance, ModuleReports,
	ModuleSettings, ModuleAdmin,
}

// AllActions lists every action.
var AllActions = []string{PermActionView, PermActionCreate, PermActionEdit, PermActionDelete, PermActionApprove}

// PermissionEntry represents a single permission assignment.
type PermissionEntry struct {
	ID     int    `json:"id"`
	Role   string `json:"role"`
	Module string `json:"module"`
	Action string `json:"action"`
}

// PermCache caches role→permissions for fast middleware lookups.
type PermCache struct {
	sync.RWMutex
	data    map[string]map[string]map[string]bool // role → module → action → true
	updated time.Time
}

// NewPermCache creates a new empty permission cache.
func NewPermCache() *PermCache {
	return &PermCache{
		data: make(map[string]map[string]map[string]bool),
	}
}

// Refresh loads all role_permissions into the in-memory cache.
func (pc *PermCache) Refresh(db *sql.DB) error {
	rows, err := db.Query("SELECT role, module, action FROM role_permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	data := make(map[string]map[string]map[string]bool)
	for rows.Next() {
		var role, module, action string
		if err := rows.Scan(&role, &module, &action); err != nil {
			continue
		}
		if data[role] == nil {
			data[role] = make(map[string]map[string]bool)
		}
		if data[role][module] == nil {
			data[role][module] = make(map[string]bool)
		}
		data[role][module][action] = true
	}

	pc.Lock()
	pc.data = data
	pc.updated = time.Now()
	pc.Unlock()
	return nil
}

// HasPermission checks whether a role has permission for module+action.
func (pc *PermCache) HasPermission(role, module, action string) bool {
	pc.RLock()
	defer pc.RUnlock()
	if pc.data[role] == nil {
		return false
	}
	if pc.data[role][module] == nil {
		return false
	}
	return pc.data[role][module][action]
}

// GetRolePermissions returns all permissions for a role.
func (pc *PermCache) GetRolePermissions(role string) []PermissionEntry {
	pc.RLock()
	defer pc.RUnlock()
	perms := []PermissionEntry{}
	for mod, actions := range pc.data[role] {
		for act := range actions {
			perms = append(perms, PermissionEntry{Role: role, Module: mod, Action: act})
		}
	}
	return perms
}

// InitPermissions seeds default permissions on an empty table and loads the cache.
func InitPermissions(db *sql.DB, pc *PermCache) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM role_permissions").Scan(&count); err != nil {
		return fmt.Errorf("count role_permissions: %w", err)
	}
	if count == 0 {
		if err := SeedDefaultPermissions(db); err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}
	}
	return pc.Refresh(db)
}

// SeedDefaultPermissions populates the default role permissions.
func SeedDefaultPermissions(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO role_permissions (role, module, action) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	// Admin: everything
	for _, mod := range AllModules {
		for _, act := range AllActions {
			if _, err := stmt.Exec(RoleAdmin, mod, act); err != nil {
				return err
			}
		}
	}

	// Staff: day-to-day work, no user administration, settings read-only
	for _, mod := range AllModules {
		switch mod {
		case ModuleAdmin:
			continue
		case ModuleSettings:
			if _, err := stmt.Exec(RoleStaff, mod, PermActionView); err != nil {
				return err
			}
			continue
		}
		for _, act := range AllActions {
			if _, err := stmt.Exec(RoleStaff, mod, act); err != nil {
				return err
			}
		}
	}

	// Readonly: view only, except user administration
	for _, mod := range AllModules {
		if mod == ModuleAdmin {
			continue
		}
		if _, err := stmt.Exec(RoleReadonly, mod, PermActionView); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetRolePermissions replaces all permissions for a role with the given set.
func SetRolePermissions(db *sql.DB, pc *PermCache, role string, perms []PermissionEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM role_permissions WHERE role = ?", role); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO role_permissions (role, module, action) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range perms {
		if _, err := stmt.Exec(role, p.Module, p.Action); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return pc.Refresh(db)
}

// MapAPIPathToPermission maps an API path + method to (module, action).
// Returns empty strings if no permission mapping exists (passthrough).
func MapAPIPathToPermission(apiPath, method string) (module, action string) {
	parts := strings.Split(apiPath, "/")
	if len(parts) == 0 {
		return "", ""
	}

	seg := parts[0]

	switch method {
	case "GET":
		action = PermActionView
	case "POST":
		action = PermActionCreate
	case "PUT", "PATCH":
		action = PermActionEdit
	case "DELETE":
		action = PermActionDelete
	}

	if len(parts) >= 3 && method == "POST" {
		switch parts[2] {
		case "confirm", "reject", "finalize", "cancel":
			action = PermActionApprove
		case "pay", "payments", "attendance", "trips", "adjust", "status",
			"convert-invoice", "convert-project", "email":
			action = PermActionEdit
		case "estimate":
			action = PermActionView
		}
	}
	if len(parts) == 2 && parts[1] == "estimate" {
		action = PermActionView
	}

	switch seg {
	case "clients":
		module = ModuleClients
	case "quotes":
		module = ModuleQuotes
	case "projects":
		module = ModuleProjects
	case "materials":
		module = ModuleInventory
	case "suppliers", "purchases":
		module = ModuleSuppliers
	case "workers", "worker-payments", "attendance":
		module = ModuleWorkers
	case "transporters", "transport-trips", "transport-payments":
		module = ModuleTransport
	case "invoices":
		module = ModuleInvoices
	case "transactions", "finance":
		module = ModuleFinance
	case "reports", "export", "dashboard":
		module = ModuleReports
	case "settings":
		module = ModuleSettings
	case "users", "permissions", "audit", "backups":
		module = ModuleAdmin
	case "auth", "me", "csrf-token", "health", "catalogue", "search":
		return "", ""
	default:
		return "", ""
	}

	return module, action
}
