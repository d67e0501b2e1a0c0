package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/logging"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/server"
	"github.com/medotmani10/windoorpvc/internal/testutil"
	"github.com/medotmani10/windoorpvc/internal/websocket"
)

func newTestServer(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	cfg.Server.UploadDir = t.TempDir()

	hub := websocket.NewHub(logging.Nop())
	t.Cleanup(hub.Close)
	app, err := newApp(db, cfg, logging.Nop(), hub)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	printer, err := printing.NewRenderer(cfg.Invoicing.Currency)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return newAPI(app, services{Printer: printer}, t.TempDir()).Handler(server.NewRateLimiter()), db
}

type session struct {
	cookie *http.Cookie
	csrf   string
}

func do(h http.Handler, method, path string, body interface{}, s *session) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s != nil {
		req.AddCookie(s.cookie)
		if s.csrf != "" {
			req.Header.Set("X-CSRF-Token", s.csrf)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func loginAs(t *testing.T, h http.Handler, username, password string) *session {
	t.Helper()
	w := do(h, "POST", "/api/v1/auth/login", map[string]string{"username": username, "password": password}, nil)
	testutil.AssertStatus(t, w, 200)
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	testutil.DecodeEnvelope(t, w, &resp)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return &session{cookie: c, csrf: resp.CSRFToken}
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func TestRoutes_PublicAndProtected(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(h, "GET", "/api/v1/health", nil, nil)
	testutil.AssertStatus(t, w, 200)
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers on every response")
	}

	testutil.AssertStatus(t, do(h, "GET", "/api/v1/clients", nil, nil), 401)
	testutil.AssertStatus(t, do(h, "GET", "/metrics", nil, nil), 401)
	testutil.AssertStatus(t, do(h, "POST", "/api/v1/auth/register", map[string]string{
		"username": "second", "password": testutil.TestPassword,
	}, nil), 403)
}

func TestRoutes_ClientLifecycle(t *testing.T) {
	h, _ := newTestServer(t)
	s := loginAs(t, h, "admin", testutil.TestPassword)

	noCSRF := &session{cookie: s.cookie}
	testutil.AssertStatus(t, do(h, "POST", "/api/v1/clients", map[string]string{"name": "Benali"}, noCSRF), 403)

	w := do(h, "POST", "/api/v1/clients", map[string]string{"name": "Benali", "phone": "0550123456", "category": "vip"}, s)
	testutil.AssertStatus(t, w, 200)
	var created struct {
		ID string `json:"id"`
	}
	testutil.DecodeEnvelope(t, w, &created)
	if !strings.HasPrefix(created.ID, "CLI-") {
		t.Fatalf("Unexpected client id %q", created.ID)
	}

	w = do(h, "GET", "/api/v1/clients/"+created.ID, nil, s)
	testutil.AssertStatus(t, w, 200)

	w = do(h, "GET", "/api/v1/export/clients", nil, s)
	testutil.AssertStatus(t, w, 200)
	if !strings.Contains(w.Body.String(), "Benali") {
		t.Error("Expected the client in the export")
	}
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/export/rockets", nil, s), 404)

	w = do(h, "GET", "/api/v1/search?q=benali", nil, s)
	testutil.AssertStatus(t, w, 200)

	testutil.AssertStatus(t, do(h, "GET", "/api/v1/no-such-thing", nil, s), 404)
}

func TestRoutes_ReadonlyRole(t *testing.T) {
	h, db := newTestServer(t)
	testutil.CreateTestUser(t, db, "viewer", testutil.TestPassword, auth.RoleReadonly, true)
	s := loginAs(t, h, "viewer", testutil.TestPassword)

	testutil.AssertStatus(t, do(h, "GET", "/api/v1/clients", nil, s), 200)
	testutil.AssertStatus(t, do(h, "POST", "/api/v1/clients", map[string]string{"name": "X"}, s), 403)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/users", nil, s), 403)
	testutil.AssertStatus(t, do(h, "GET", "/metrics", nil, s), 403)
}

func TestRoutes_MetricsForAdmin(t *testing.T) {
	h, _ := newTestServer(t)
	s := loginAs(t, h, "admin", testutil.TestPassword)
	w := do(h, "GET", "/metrics", nil, s)
	testutil.AssertStatus(t, w, 200)
	if !strings.Contains(w.Body.String(), "# TYPE") {
		t.Error("Expected Prometheus exposition output")
	}
}

func TestRoutes_Estimate(t *testing.T) {
	h, _ := newTestServer(t)
	s := loginAs(t, h, "admin", testutil.TestPassword)

	w := do(h, "POST", "/api/v1/quotes/estimate", map[string]interface{}{
		"type": "sliding", "width": 120, "height": 150, "quantity": 2,
		"profile_type": "aluminium", "glass_type": "double",
	}, s)
	testutil.AssertStatus(t, w, 200)
	var b struct {
		TotalPrice float64 `json:"total_price"`
	}
	testutil.DecodeEnvelope(t, w, &b)
	if b.TotalPrice != 35632 {
		t.Errorf("Expected total 35632, got %v", b.TotalPrice)
	}
}
