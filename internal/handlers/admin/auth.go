package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// LoginRequest is the body of POST /auth/login and /auth/register.
type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// startSession opens a session for userID, sets the cookie and answers
// with the user and a fresh CSRF token.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID int, username string) {
	token, expires, err := auth.CreateSession(h.DB, userID, h.sessionTTL())
	if err != nil {
		response.Err(w, "Failed to create session", 500)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})

	csrfToken, err := auth.CreateCSRFToken(h.DB, userID)
	if err != nil {
		csrfToken = ""
	}

	u, err := h.loadUser(userID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	audit.Log(h.DB, nil, audit.Options{
		UserID:    userID,
		Username:  username,
		Action:    audit.ActionLogin,
		Module:    "auth",
		RecordID:  username,
		Summary:   "تسجيل الدخول",
		IPAddress: audit.GetClientIP(r),
		UserAgent: r.UserAgent(),
	})
	response.JSON(w, map[string]interface{}{"user": u, "csrf_token": csrfToken})
}

// HandleLogin authenticates a user and creates a session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.Username == "" || req.Password == "" {
		response.Err(w, "Username and password required", 400)
		return
	}

	id, _, err := auth.Authenticate(h.DB, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Err(w, "Invalid username or password", 401)
		return
	case errors.Is(err, auth.ErrAccountLocked):
		response.Err(w, "Account temporarily locked due to too many failed login attempts. Try again later.", 403)
		return
	case errors.Is(err, auth.ErrAccountDisabled):
		response.Err(w, "Account deactivated", 403)
		return
	case err != nil:
		response.Err(w, err.Error(), 500)
		return
	}

	auth.PurgeExpired(h.DB)
	h.startSession(w, r, id, req.Username)
}

// HandleRegister creates the first account, an admin. Once any user exists
// accounts are created by an admin through /users.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	n, err := auth.CountUsers(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n > 0 {
		response.Err(w, "Registration is closed; ask an administrator for an account", 403)
		return
	}

	id, err := auth.CreateUser(h.DB, auth.NewUser{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        auth.RoleAdmin,
	})
	if errors.Is(err, auth.ErrUserExists) {
		response.Err(w, err.Error(), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	h.startSession(w, r, int(id), req.Username)
}

// HandleLogout ends the caller's session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		h.Audit.Record(r, audit.ActionLogout, "auth", "", "تسجيل الخروج")
		auth.DeleteSession(h.DB, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	response.JSON(w, map[string]string{"status": "ok"})
}

// HandleMe returns the current user and their permissions.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u := h.CurrentUser(r)
	if u == nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	response.JSON(w, map[string]interface{}{
		"user":        u,
		"permissions": h.permissionsFor(u.Role),
	})
}

// HandleCSRFToken issues a new CSRF token for the current session.
func (h *Handler) HandleCSRFToken(w http.ResponseWriter, r *http.Request) {
	u := h.CurrentUser(r)
	if u == nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	token, err := auth.CreateCSRFToken(h.DB, u.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{
		"csrf_token": token,
		"expires_at": time.Now().UTC().Add(auth.CSRFTokenTTL).Format(auth.TimeLayout),
	})
}

// HandleChangePassword changes the current user's password and ends their
// other sessions.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	u := h.CurrentUser(r)
	if u == nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		response.Err(w, "Current and new password required", 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.NewPassword); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	var currentHash string
	if err := h.DB.QueryRow("SELECT password_hash FROM users WHERE id = ?", u.ID).Scan(&currentHash); err != nil {
		response.Err(w, "User not found", 404)
		return
	}
	if !auth.CheckPassword(currentHash, req.CurrentPassword) {
		response.Err(w, "Current password is incorrect", 401)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		response.Err(w, "Failed to hash password", 500)
		return
	}
	if _, err := h.DB.Exec("UPDATE users SET password_hash = ? WHERE id = ?", hash, u.ID); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	cookie, _ := r.Cookie(auth.SessionCookie)
	h.DB.Exec("DELETE FROM sessions WHERE user_id = ? AND token != ?", u.ID, cookie.Value)

	h.Audit.Record(r, audit.ActionUpdate, "users", u.Username, "تغيير كلمة المرور")
	response.JSON(w, map[string]string{"status": "password changed"})
}
