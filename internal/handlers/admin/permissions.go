package admin

import (
	"net/http"
	"sort"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/response"
)

func allPermissions() []auth.PermissionEntry {
	var perms []auth.PermissionEntry
	for _, mod := range auth.AllModules {
		for _, act := range auth.AllActions {
			perms = append(perms, auth.PermissionEntry{Role: auth.RoleAdmin, Module: mod, Action: act})
		}
	}
	return perms
}

// permissionsFor returns what role may do, sorted by module then action.
// Admins may do everything regardless of the table.
func (h *Handler) permissionsFor(role string) []auth.PermissionEntry {
	if role == auth.RoleAdmin {
		return allPermissions()
	}
	if h.PermCache == nil {
		h.PermCache = auth.NewPermCache()
		h.PermCache.Refresh(h.DB)
	}
	perms := h.PermCache.GetRolePermissions(role)
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Module != perms[j].Module {
			return perms[i].Module < perms[j].Module
		}
		return perms[i].Action < perms[j].Action
	})
	return perms
}

// HandleListPermissions lists all permissions for all roles (or ?role=X).
func (h *Handler) HandleListPermissions(w http.ResponseWriter, r *http.Request) {
	roleFilter := r.URL.Query().Get("role")

	rows, err := h.DB.Query("SELECT id, role, module, action FROM role_permissions ORDER BY role, module, action")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	perms := []auth.PermissionEntry{}
	for rows.Next() {
		var p auth.PermissionEntry
		if err := rows.Scan(&p.ID, &p.Role, &p.Module, &p.Action); err != nil {
			continue
		}
		if roleFilter == "" || p.Role == roleFilter {
			perms = append(perms, p)
		}
	}
	response.JSON(w, perms)
}

// HandleListModules lists all available modules and actions.
func (h *Handler) HandleListModules(w http.ResponseWriter, r *http.Request) {
	type ModuleInfo struct {
		Module  string   `json:"module"`
		Actions []string `json:"actions"`
	}
	var modules []ModuleInfo
	for _, mod := range auth.AllModules {
		modules = append(modules, ModuleInfo{Module: mod, Actions: auth.AllActions})
	}
	response.JSON(w, modules)
}

// HandleMyPermissions returns the current user's permissions.
func (h *Handler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	u := h.CurrentUser(r)
	if u == nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	response.JSON(w, h.permissionsFor(u.Role))
}

// HandleSetPermissions replaces all permissions for a role. The admin role
// always holds every permission and cannot be edited.
func (h *Handler) HandleSetPermissions(w http.ResponseWriter, r *http.Request, role string) {
	if !auth.ValidRole(role) {
		response.Err(w, auth.ErrInvalidRole.Error(), 400)
		return
	}
	if role == auth.RoleAdmin {
		response.Err(w, "Admin permissions are fixed", 400)
		return
	}

	var req struct {
		Permissions []struct {
			Module string `json:"module"`
			Action string `json:"action"`
		} `json:"permissions"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	validModules := make(map[string]bool)
	for _, m := range auth.AllModules {
		validModules[m] = true
	}
	validActions := make(map[string]bool)
	for _, a := range auth.AllActions {
		validActions[a] = true
	}

	seen := make(map[string]bool)
	perms := []auth.PermissionEntry{}
	for _, p := range req.Permissions {
		if !validModules[p.Module] {
			response.Err(w, "Invalid module: "+p.Module, 400)
			return
		}
		if !validActions[p.Action] {
			response.Err(w, "Invalid action: "+p.Action, 400)
			return
		}
		key := p.Module + ":" + p.Action
		if !seen[key] {
			seen[key] = true
			perms = append(perms, auth.PermissionEntry{Role: role, Module: p.Module, Action: p.Action})
		}
	}

	if h.RequireAdmin(w, r) == nil {
		return
	}

	if h.PermCache == nil {
		h.PermCache = auth.NewPermCache()
	}
	if err := auth.SetRolePermissions(h.DB, h.PermCache, role, perms); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, "permissions", role, "تعديل صلاحيات الدور "+role, nil, perms)
	response.JSON(w, map[string]interface{}{"status": "updated", "role": role, "count": len(perms)})
}
