package admin_test

import (
	"net/http/httptest"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/handlers/admin"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func newHandler(t *testing.T) *admin.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	pc := auth.NewPermCache()
	if err := pc.Refresh(db); err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}
	return &admin.Handler{
		DB:        db,
		Audit:     audit.NewRecorder(db, nil, nil),
		PermCache: pc,
		UploadDir: t.TempDir(),
		BackupDir: t.TempDir(),
	}
}

type loginResponse struct {
	User      models.User `json:"user"`
	CSRFToken string      `json:"csrf_token"`
}

func login(h *admin.Handler, username, password string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.HandleLogin(w, testutil.JSONRequest("POST", "/api/v1/auth/login", map[string]string{
		"username": username, "password": password,
	}))
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.Value != "" {
			return c.Value
		}
	}
	t.Fatal("Expected a session cookie")
	return ""
}

func TestLogin(t *testing.T) {
	h := newHandler(t)

	w := login(h, "admin", testutil.TestPassword)
	testutil.AssertStatus(t, w, 200)
	var resp loginResponse
	testutil.DecodeEnvelope(t, w, &resp)
	if resp.User.Username != "admin" || resp.User.Role != auth.RoleAdmin || resp.CSRFToken == "" {
		t.Errorf("Unexpected login response %+v", resp)
	}
	token := sessionCookie(t, w)

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM sessions WHERE token = ?", token).Scan(&n)
	if n != 1 {
		t.Error("Expected the session to be stored")
	}
	h.DB.QueryRow("SELECT COUNT(*) FROM audit_log WHERE action = ? AND username = 'admin'", audit.ActionLogin).Scan(&n)
	if n != 1 {
		t.Error("Expected the login to be audited")
	}
}

func TestLogin_Failures(t *testing.T) {
	h := newHandler(t)
	testutil.CreateTestUser(t, h.DB, "disabled", testutil.TestPassword, auth.RoleStaff, false)

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{"wrong password", "admin", "Nope-Nope-2026", 401},
		{"unknown user", "ghost", testutil.TestPassword, 401},
		{"missing fields", "admin", "", 400},
		{"deactivated", "disabled", testutil.TestPassword, 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertStatus(t, login(h, tt.username, tt.password), tt.want)
		})
	}
}

func TestLogin_Lockout(t *testing.T) {
	h := newHandler(t)
	if _, err := h.DB.Exec("UPDATE users SET failed_login_attempts = ? WHERE username = 'admin'",
		auth.MaxFailedLoginAttempts-1); err != nil {
		t.Fatal(err)
	}

	testutil.AssertStatus(t, login(h, "admin", "Wrong-Password-1"), 401)
	testutil.AssertStatus(t, login(h, "admin", testutil.TestPassword), 403)
}

func TestLogoutAndMe(t *testing.T) {
	h := newHandler(t)
	token := testutil.LoginAdmin(t, h.DB)

	w := httptest.NewRecorder()
	h.HandleMe(w, testutil.AuthedRequest("GET", "/api/v1/auth/me", nil, token))
	testutil.AssertStatus(t, w, 200)
	var me struct {
		User        models.User            `json:"user"`
		Permissions []auth.PermissionEntry `json:"permissions"`
	}
	testutil.DecodeEnvelope(t, w, &me)
	if me.User.Username != "admin" || len(me.Permissions) != len(auth.AllModules)*len(auth.AllActions) {
		t.Errorf("Unexpected me %+v", me.User)
	}

	w = httptest.NewRecorder()
	h.HandleLogout(w, testutil.AuthedRequest("POST", "/api/v1/auth/logout", nil, token))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.HandleMe(w, testutil.AuthedRequest("GET", "/api/v1/auth/me", nil, token))
	testutil.AssertStatus(t, w, 401)
}

func TestRegister_FirstUserOnly(t *testing.T) {
	h := newHandler(t)
	body := map[string]string{"username": "owner", "password": testutil.TestPassword}

	w := httptest.NewRecorder()
	h.HandleRegister(w, testutil.JSONRequest("POST", "/api/v1/auth/register", body))
	testutil.AssertStatus(t, w, 403)

	if _, err := h.DB.Exec("DELETE FROM users"); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	h.HandleRegister(w, testutil.JSONRequest("POST", "/api/v1/auth/register", map[string]string{
		"username": "owner", "password": "short",
	}))
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.HandleRegister(w, testutil.JSONRequest("POST", "/api/v1/auth/register", body))
	testutil.AssertStatus(t, w, 200)
	var resp loginResponse
	testutil.DecodeEnvelope(t, w, &resp)
	if resp.User.Username != "owner" || resp.User.Role != auth.RoleAdmin {
		t.Errorf("Expected the first account to be an admin, got %+v", resp.User)
	}
	sessionCookie(t, w)
}

func TestCSRFToken(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	h.HandleCSRFToken(w, httptest.NewRequest("GET", "/api/v1/auth/csrf-token", nil))
	testutil.AssertStatus(t, w, 401)

	token := testutil.LoginAdmin(t, h.DB)
	w = httptest.NewRecorder()
	h.HandleCSRFToken(w, testutil.AuthedRequest("GET", "/api/v1/auth/csrf-token", nil, token))
	testutil.AssertStatus(t, w, 200)
	var resp map[string]string
	testutil.DecodeEnvelope(t, w, &resp)
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM csrf_tokens WHERE token = ?", resp["csrf_token"]).Scan(&n)
	if n != 1 {
		t.Error("Expected the CSRF token to be stored")
	}
}

func TestChangePassword(t *testing.T) {
	h := newHandler(t)
	token := testutil.LoginAdmin(t, h.DB)
	other := testutil.LoginAdmin(t, h.DB)

	w := httptest.NewRecorder()
	h.HandleChangePassword(w, testutil.AuthedJSONRequest("POST", "/api/v1/auth/change-password", map[string]string{
		"current_password": "Not-The-Password1", "new_password": "Fenetre-Alu-2027!",
	}, token))
	testutil.AssertStatus(t, w, 401)

	w = httptest.NewRecorder()
	h.HandleChangePassword(w, testutil.AuthedJSONRequest("POST", "/api/v1/auth/change-password", map[string]string{
		"current_password": testutil.TestPassword, "new_password": "Fenetre-Alu-2027!",
	}, token))
	testutil.AssertStatus(t, w, 200)

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM sessions WHERE token = ?", other).Scan(&n)
	if n != 0 {
		t.Error("Expected other sessions to be ended")
	}
	testutil.AssertStatus(t, login(h, "admin", "Fenetre-Alu-2027!"), 200)
}
