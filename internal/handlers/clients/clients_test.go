package clients_test

import (
	"database/sql"
	"net/http/httptest"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func newTestHandler(db *sql.DB) *clients.Handler {
	return &clients.Handler{
		DB:     db,
		Audit:  audit.NewRecorder(db, nil, nil),
		NextID: testutil.NextID(),
	}
}

func TestCreateClient(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)

	w := httptest.NewRecorder()
	h.CreateClient(w, testutil.JSONRequest("POST", "/api/v1/clients", map[string]string{
		"name": "  Benali Construction ", "phone": "0550 12 34 56", "category": "vip",
	}))
	testutil.AssertStatus(t, w, 200)

	var c models.Client
	testutil.DecodeEnvelope(t, w, &c)
	if c.ID != "CLI-2026-0001" {
		t.Errorf("Expected id CLI-2026-0001, got %s", c.ID)
	}
	if c.Name != "Benali Construction" {
		t.Errorf("Expected trimmed name, got %q", c.Name)
	}

	var n int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE module = 'clients' AND action = 'CREATE'").Scan(&n)
	if n != 1 {
		t.Errorf("Expected 1 audit entry, got %d", n)
	}
}

func TestCreateClient_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)

	cases := []map[string]string{
		{"name": ""},
		{"name": "X", "category": "gold"},
		{"name": "X", "email": "not-an-email"},
		{"name": "X", "phone": "abc"},
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		h.CreateClient(w, testutil.JSONRequest("POST", "/api/v1/clients", body))
		if w.Code != 400 {
			t.Errorf("Expected status 400 for %v, got %d: %s", body, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/clients", nil)
	h.CreateClient(w, req)
	testutil.AssertStatus(t, w, 400)
}

func TestClientBalanceFromFinalInvoicesAndPayments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")

	db.Exec(`INSERT INTO invoices (id, invoice_number, type, client_id, amount, tax, total, date, due_date, status)
		VALUES ('INV-1', 'FAC-2026-0001', 'final', 'CLI-2026-0001', 100000, 19000, 119000, '2026-03-01', '2026-03-31', 'pending')`)
	// proforma and cancelled invoices are not billed
	db.Exec(`INSERT INTO invoices (id, invoice_number, type, client_id, amount, tax, total, date, due_date, status)
		VALUES ('INV-2', 'PRO-2026-0001', 'proforma', 'CLI-2026-0001', 50000, 9500, 59500, '2026-03-02', '2026-04-01', 'draft')`)
	db.Exec(`INSERT INTO invoices (id, invoice_number, type, client_id, amount, tax, total, date, due_date, status)
		VALUES ('INV-3', 'FAC-2026-0002', 'final', 'CLI-2026-0001', 1000, 190, 1190, '2026-03-02', '2026-04-01', 'cancelled')`)

	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/api/v1/clients/CLI-2026-0001/payments", map[string]interface{}{
		"amount": 40000, "date": "2026-03-05", "method": "cheque",
	}), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetClient(w, httptest.NewRequest("GET", "/api/v1/clients/CLI-2026-0001", nil), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 200)
	var c models.Client
	testutil.DecodeEnvelope(t, w, &c)
	if c.Balance.Billed != 119000 || c.Balance.Paid != 40000 || c.Balance.Due != 79000 {
		t.Errorf("Unexpected balance %+v", c.Balance)
	}

	w = httptest.NewRecorder()
	h.Statement(w, httptest.NewRequest("GET", "/api/v1/clients/CLI-2026-0001/statement", nil), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 200)
	var st []models.StatementEntry
	testutil.DecodeEnvelope(t, w, &st)
	if len(st) != 2 {
		t.Fatalf("Expected 2 statement rows, got %d", len(st))
	}
	if st[0].Kind != "invoice" || st[1].Running != 79000 {
		t.Errorf("Unexpected statement %+v", st)
	}
}

func TestRecordPayment_Rejects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")

	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 0}), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 10, "method": "bitcoin"}), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 10}), "CLI-404")
	testutil.AssertStatus(t, w, 404)
}

func TestListClients(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	testutil.InsertClient(t, db, "CLI-2026-0002", "Haddad")
	db.Exec("INSERT INTO transactions (id, amount, type, date, client_id) VALUES ('TRX-1', 5000, 'income', '2026-01-01', 'CLI-2026-0002')")

	w := httptest.NewRecorder()
	h.ListClients(w, httptest.NewRequest("GET", "/api/v1/clients", nil))
	testutil.AssertStatus(t, w, 200)

	var out struct {
		Clients      []models.Client `json:"clients"`
		TotalAdvance float64         `json:"total_advance"`
	}
	testutil.DecodeEnvelope(t, w, &out)
	if len(out.Clients) != 2 {
		t.Fatalf("Expected 2 clients, got %d", len(out.Clients))
	}
	if out.TotalAdvance != 5000 {
		t.Errorf("Expected advance 5000, got %v", out.TotalAdvance)
	}

	w = httptest.NewRecorder()
	h.ListClients(w, httptest.NewRequest("GET", "/api/v1/clients?search=Had", nil))
	testutil.DecodeEnvelope(t, w, &out)
	if len(out.Clients) != 1 || out.Clients[0].Name != "Haddad" {
		t.Errorf("Expected search to match Haddad, got %+v", out.Clients)
	}
}

func TestUpdateAndDeleteClient(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	testutil.InsertClient(t, db, "CLI-2026-0002", "Haddad")
	db.Exec("INSERT INTO projects (id, name, client_id) VALUES ('PRJ-1', 'Villa', 'CLI-2026-0002')")

	w := httptest.NewRecorder()
	h.UpdateClient(w, testutil.JSONRequest("PUT", "/", map[string]string{"name": "Benali SARL", "category": "regular"}), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 200)
	var c models.Client
	testutil.DecodeEnvelope(t, w, &c)
	if c.Name != "Benali SARL" || c.Category != "regular" {
		t.Errorf("Unexpected client after update: %+v", c)
	}

	w = httptest.NewRecorder()
	h.DeleteClient(w, httptest.NewRequest("DELETE", "/", nil), "CLI-2026-0002")
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.DeleteClient(w, httptest.NewRequest("DELETE", "/", nil), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetClient(w, httptest.NewRequest("GET", "/", nil), "CLI-2026-0001")
	testutil.AssertStatus(t, w, 404)
}
