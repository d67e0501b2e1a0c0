package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/models"
)

// TestPassword satisfies the password policy.
const TestPassword = "Workshop2026!"

// SetupTestDB opens a migrated in-memory database with default permissions
// and an admin account named "admin".
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	if err := auth.SeedDefaultPermissions(testDB); err != nil {
		t.Fatalf("Failed to seed permissions: %v", err)
	}
	CreateTestUser(t, testDB, "admin", TestPassword, auth.RoleAdmin, true)
	return testDB
}

// CreateTestUser creates a test user with the given credentials.
func CreateTestUser(t *testing.T, db *sql.DB, username, password, role string, active bool) int {
	t.Helper()
	id, err := auth.CreateUser(db, auth.NewUser{Username: username, Password: password, Role: role})
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	if !active {
		if _, err := db.Exec("UPDATE users SET active = 0 WHERE id = ?", id); err != nil {
			t.Fatalf("Failed to deactivate test user: %v", err)
		}
	}
	return int(id)
}

// CreateTestSessionSimple creates a session token for the given user with default 24h expiry.
func CreateTestSessionSimple(t *testing.T, db *sql.DB, userID int) string {
	t.Helper()
	token, _, err := auth.CreateSession(db, userID, 24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// LoginAdmin returns a session token for the default admin user.
func LoginAdmin(t *testing.T, db *sql.DB) string {
	t.Helper()
	var adminID int
	if err := db.QueryRow("SELECT id FROM users WHERE username = 'admin'").Scan(&adminID); err != nil {
		t.Fatalf("Failed to find admin user: %v", err)
	}
	return CreateTestSessionSimple(t, db, adminID)
}

// LoginUser creates a staff user and returns their session token.
func LoginUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()
	userID := CreateTestUser(t, db, username, TestPassword, auth.RoleStaff, true)
	return CreateTestSessionSimple(t, db, userID)
}

// AuthedRequest creates an authenticated HTTP request with a session cookie.
func AuthedRequest(method, path string, body []byte, sessionToken string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: sessionToken})
	}

	return req
}

// AuthedJSONRequest creates an authenticated HTTP request with JSON content type.
func AuthedJSONRequest(method, path string, body interface{}, sessionToken string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}

	req := AuthedRequest(method, path, bodyBytes, sessionToken)
	req.Header.Set("Content-Type", "application/json")

	return req
}

// JSONRequest creates an unauthenticated request carrying body as JSON.
func JSONRequest(method, path string, body interface{}) *http.Request {
	return AuthedJSONRequest(method, path, body, "")
}

// DecodeAPIResponse decodes an APIResponse from a ResponseRecorder.
func DecodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	return response
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// NextID returns a deterministic id generator for handler tests.
func NextID() func(prefix, table string, digits int) string {
	n := 0
	return func(prefix, table string, digits int) string {
		n++
		return fmt.Sprintf("%s-2026-%0*d", prefix, digits, n)
	}
}

// InsertClient adds a client row directly.
func InsertClient(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO clients (id, name, phone) VALUES (?, ?, '0550000000')", id, name); err != nil {
		t.Fatalf("Failed to insert client: %v", err)
	}
}

// InsertSupplier adds a supplier row directly.
func InsertSupplier(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO suppliers (id, name) VALUES (?, ?)", id, name); err != nil {
		t.Fatalf("Failed to insert supplier: %v", err)
	}
}

// InsertWorker adds an active worker with the given daily rate.
func InsertWorker(t *testing.T, db *sql.DB, id, name string, dailyRate float64) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO workers (id, name, daily_rate) VALUES (?, ?, ?)", id, name, dailyRate); err != nil {
		t.Fatalf("Failed to insert worker: %v", err)
	}
}

// InsertTransporter adds an active transporter.
func InsertTransporter(t *testing.T, db *sql.DB, id, driver string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO transporters (id, driver_name) VALUES (?, ?)", id, driver); err != nil {
		t.Fatalf("Failed to insert transporter: %v", err)
	}
}

// InsertMaterial adds a material with stock and cost price.
func InsertMaterial(t *testing.T, db *sql.DB, id, name string, qty, minQty, cost float64) {
	t.Helper()
	_, err := db.Exec("INSERT INTO materials (id, name, unit, quantity, min_quantity, cost_price) VALUES (?, ?, 'piece', ?, ?, ?)",
		id, name, qty, minQty, cost)
	if err != nil {
		t.Fatalf("Failed to insert material: %v", err)
	}
}
