package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/database"
)

const strongPassword = "Workshop2026!"

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	db := setupDB(t)

	id, err := CreateUser(db, NewUser{Username: "amine", Password: strongPassword, Role: RoleAdmin})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	gotID, role, err := Authenticate(db, "amine", strongPassword)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if int64(gotID) != id || role != RoleAdmin {
		t.Errorf("got id=%d role=%s", gotID, role)
	}

	if _, _, err := Authenticate(db, "amine", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, _, err := Authenticate(db, "nobody", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestCreateUserRejects(t *testing.T) {
	db := setupDB(t)
	if _, err := CreateUser(db, NewUser{Username: "amine", Password: "short"}); err == nil {
		t.Error("weak password accepted")
	}
	if _, err := CreateUser(db, NewUser{Username: "amine", Password: strongPassword, Role: "owner"}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role err = %v", err)
	}
	if _, err := CreateUser(db, NewUser{Username: "amine", Password: strongPassword}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateUser(db, NewUser{Username: "amine", Password: strongPassword}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate err = %v", err)
	}
	n, _ := CountUsers(db)
	if n != 1 {
		t.Errorf("users = %d, want 1", n)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	db := setupDB(t)
	if _, err := CreateUser(db, NewUser{Username: "karim", Password: strongPassword}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxFailedLoginAttempts; i++ {
		Authenticate(db, "karim", "nope")
	}
	if _, _, err := Authenticate(db, "karim", strongPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want locked", err)
	}

	// an expired lock is lifted
	db.Exec("UPDATE users SET locked_until = '2000-01-01 00:00:00' WHERE username = 'karim'")
	if _, _, err := Authenticate(db, "karim", strongPassword); err != nil {
		t.Errorf("after lock expiry: %v", err)
	}
}

func TestDisabledAccount(t *testing.T) {
	db := setupDB(t)
	CreateUser(db, NewUser{Username: "old", Password: strongPassword})
	db.Exec("UPDATE users SET active = 0 WHERE username = 'old'")
	if _, _, err := Authenticate(db, "old", strongPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("err = %v", err)
	}
}

func TestSessionsAndPurge(t *testing.T) {
	db := setupDB(t)
	id, _ := CreateUser(db, NewUser{Username: "amine", Password: strongPassword})

	token, _, err := CreateSession(db, int(id), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d", len(token))
	}
	if _, err := CreateCSRFToken(db, int(id)); err != nil {
		t.Fatal(err)
	}
	n, err := PurgeExpired(db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
}

func TestDefaultPermissions(t *testing.T) {
	db := setupDB(t)
	pc := NewPermCache()
	if err := InitPermissions(db, pc); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		role, module, action string
		want                 bool
	}{
		{RoleAdmin, ModuleAdmin, PermActionDelete, true},
		{RoleStaff, ModuleInvoices, PermActionApprove, true},
		{RoleStaff, ModuleAdmin, PermActionView, false},
		{RoleStaff, ModuleSettings, PermActionView, true},
		{RoleStaff, ModuleSettings, PermActionEdit, false},
		{RoleReadonly, ModuleClients, PermActionView, true},
		{RoleReadonly, ModuleClients, PermActionCreate, false},
	}
	for _, c := range cases {
		if got := pc.HasPermission(c.role, c.module, c.action); got != c.want {
			t.Errorf("%s %s %s = %v, want %v", c.role, c.module, c.action, got, c.want)
		}
	}
}

func TestMapAPIPathToPermission(t *testing.T) {
	cases := []struct {
		path, method, module, action string
	}{
		{"clients", "GET", ModuleClients, PermActionView},
		{"clients/CLI-2026-0001", "PUT", ModuleClients, PermActionEdit},
		{"clients/CLI-2026-0001/payments", "POST", ModuleClients, PermActionEdit},
		{"quotes/estimate", "POST", ModuleQuotes, PermActionView},
		{"quotes/DEV-2026-0001/confirm", "POST", ModuleQuotes, PermActionApprove},
		{"invoices/INV-2026-0001/finalize", "POST", ModuleInvoices, PermActionApprove},
		{"invoices/INV-2026-0001/pay", "POST", ModuleInvoices, PermActionEdit},
		{"materials", "DELETE", ModuleInventory, PermActionDelete},
		{"purchases", "POST", ModuleSuppliers, PermActionCreate},
		{"transactions", "GET", ModuleFinance, PermActionView},
		{"users", "GET", ModuleAdmin, PermActionView},
		{"auth/me", "GET", "", ""},
	}
	for _, c := range cases {
		m, a := MapAPIPathToPermission(c.path, c.method)
		if m != c.module || a != c.action {
			t.Errorf("%s %s = (%s, %s), want (%s, %s)", c.method, c.path, m, a, c.module, c.action)
		}
	}
}
