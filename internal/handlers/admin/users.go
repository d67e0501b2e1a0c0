package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// UpdateUserRequest is the body of PUT /users/{id}.
type UpdateUserRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Active      *bool  `json:"active"`
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	rows, err := h.DB.Query("SELECT " + userColumns + " FROM users u ORDER BY u.id")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		users = append(users, *u)
	}
	response.JSON(w, users)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	var req CreateUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.ValidateMaxLength(ve, "username", req.Username, 100)
	validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
	validation.ValidateEmail(ve, "email", req.Email)
	if req.Role != "" && !auth.ValidRole(req.Role) {
		ve.Add("role", auth.ErrInvalidRole.Error())
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	id, err := auth.CreateUser(h.DB, auth.NewUser{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
	})
	if errors.Is(err, auth.ErrUserExists) {
		response.Err(w, "Username already exists", 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	u, err := h.loadUser(int(id))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionCreate, "users", u.Username, "إضافة مستخدم "+u.Username+" ("+u.Role+")")
	w.WriteHeader(201)
	response.JSON(w, u)
}

// activeAdmins counts enabled admin accounts other than excludeID.
func (h *Handler) activeAdmins(excludeID int) (int, error) {
	var n int
	err := h.DB.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin' AND active = 1 AND id != ?", excludeID).Scan(&n)
	return n, err
}

// UpdateUser changes profile, role or active flag. The last active admin
// cannot be demoted or disabled.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, idStr string) {
	caller := h.RequireAdmin(w, r)
	if caller == nil {
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid user ID", 400)
		return
	}
	before, err := h.loadUser(id)
	if err == sql.ErrNoRows {
		response.Err(w, "User not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var req UpdateUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.Role == "" {
		req.Role = before.Role
	}
	if req.DisplayName == "" {
		req.DisplayName = before.DisplayName
	}
	active := before.Active
	if req.Active != nil {
		active = *req.Active
	}

	ve := &validation.ValidationErrors{}
	validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
	validation.ValidateEmail(ve, "email", req.Email)
	if !auth.ValidRole(req.Role) {
		ve.Add("role", auth.ErrInvalidRole.Error())
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	if before.Role == auth.RoleAdmin && (req.Role != auth.RoleAdmin || !active) {
		n, err := h.activeAdmins(id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if n == 0 {
			response.Err(w, "Cannot demote or deactivate the last administrator", 409)
			return
		}
	}

	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err = h.DB.Exec("UPDATE users SET display_name = ?, email = ?, role = ?, active = ? WHERE id = ?",
		req.DisplayName, req.Email, req.Role, activeInt, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if !active {
		h.DB.Exec("DELETE FROM sessions WHERE user_id = ?", id)
	}

	after, err := h.loadUser(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, "users", after.Username, "تعديل المستخدم "+after.Username, before, after)
	response.JSON(w, after)
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, idStr string) {
	caller := h.RequireAdmin(w, r)
	if caller == nil {
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid user ID", 400)
		return
	}
	if id == caller.ID {
		response.Err(w, "Cannot delete your own account", 409)
		return
	}
	u, err := h.loadUser(id)
	if err == sql.ErrNoRows {
		response.Err(w, "User not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM users WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, "users", u.Username, "حذف المستخدم "+u.Username)
	response.JSON(w, map[string]interface{}{"status": "deleted", "id": id})
}

// ResetPassword sets a new password for another account and ends its
// sessions.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request, idStr string) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "Invalid user ID", 400)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	u, err := h.loadUser(id)
	if err == sql.ErrNoRows {
		response.Err(w, "User not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		response.Err(w, "Failed to hash password", 500)
		return
	}
	if _, err := h.DB.Exec("UPDATE users SET password_hash = ?, failed_login_attempts = 0, locked_until = NULL WHERE id = ?", hash, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.DB.Exec("DELETE FROM sessions WHERE user_id = ?", id)
	h.Audit.Record(r, audit.ActionUpdate, "users", u.Username, "إعادة تعيين كلمة مرور "+u.Username)
	response.JSON(w, map[string]string{"status": "password reset"})
}
