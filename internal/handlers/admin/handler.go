// Package admin serves authentication, user accounts, permissions, company
// settings, the audit log and database backups.
package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// Handler holds dependencies for admin handlers.
type Handler struct {
	DB           *sql.DB
	Audit        *audit.Recorder
	PermCache    *auth.PermCache
	SessionTTL   time.Duration
	SecureCookie bool
	UploadDir    string
	BackupDir    string
	Mailer       mailer.Sender
}

func (h *Handler) sessionTTL() time.Duration {
	if h.SessionTTL <= 0 {
		return 24 * time.Hour
	}
	return h.SessionTTL
}

const userColumns = `u.id, u.username, u.display_name, COALESCE(u.email, ''), u.role, u.active, u.created_at, u.last_login`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var active int
	var lastLogin sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.Role, &active, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Active = active == 1
	u.LastLogin = database.StrPtr(lastLogin)
	return &u, nil
}

func (h *Handler) loadUser(id int) (*models.User, error) {
	return scanUser(h.DB.QueryRow("SELECT "+userColumns+" FROM users u WHERE u.id = ?", id))
}

// CurrentUser resolves the account behind the request's session cookie.
func (h *Handler) CurrentUser(r *http.Request) *models.User {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return nil
	}
	u, err := scanUser(h.DB.QueryRow(`SELECT `+userColumns+`
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?`, cookie.Value, time.Now().UTC().Format(auth.TimeLayout)))
	if err != nil {
		return nil
	}
	return u
}

// RequireAdmin writes 401/403 and returns nil unless the caller is an admin.
func (h *Handler) RequireAdmin(w http.ResponseWriter, r *http.Request) *models.User {
	u := h.CurrentUser(r)
	if u == nil {
		response.Err(w, "Unauthorized", 401)
		return nil
	}
	if u.Role != auth.RoleAdmin {
		response.Err(w, "Admin access required", 403)
		return nil
	}
	return u
}
