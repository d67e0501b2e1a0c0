package sales_test

import (
	"database/sql"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/handlers/sales"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func createInvoice(t *testing.T, h *sales.Handler, body map[string]interface{}) models.Invoice {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateInvoice(w, testutil.JSONRequest("POST", "/api/v1/invoices", body))
	testutil.AssertStatus(t, w, 200)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	return inv
}

func doorLine() []interface{} {
	return []interface{}{map[string]interface{}{"description": "Porte PVC 90x210", "quantity": 2, "unit_price": 50000}}
}

func setupInvoiceTest(t *testing.T) (*sql.DB, *sales.Handler) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	return db, newTestHandler(t, db)
}

func TestCreateInvoice_Final(t *testing.T) {
	_, h := setupInvoiceTest(t)

	inv := createInvoice(t, h, map[string]interface{}{
		"type": "final", "client_id": "CLI-2026-0001", "date": "2026-05-01", "items": doorLine(),
	})
	if !strings.HasPrefix(inv.InvoiceNumber, "FAC-") || !strings.HasSuffix(inv.InvoiceNumber, "-0001") {
		t.Errorf("Unexpected number %s", inv.InvoiceNumber)
	}
	if inv.Status != "pending" || inv.FinalizedAt == nil {
		t.Errorf("Final invoice should start pending and finalized, got %+v", inv)
	}
	if inv.Amount != 100000 || inv.Tax != 19000 || inv.Total != 119000 {
		t.Errorf("Unexpected totals %v / %v / %v", inv.Amount, inv.Tax, inv.Total)
	}
	if inv.DueDate != "2026-05-31" {
		t.Errorf("Expected default due date 2026-05-31, got %s", inv.DueDate)
	}
	if len(inv.Items) != 1 || inv.Items[0].Unit != "piece" || inv.Items[0].Total != 100000 {
		t.Errorf("Unexpected items %+v", inv.Items)
	}
}

func TestCreateInvoice_Validation(t *testing.T) {
	_, h := setupInvoiceTest(t)

	cases := []map[string]interface{}{
		{"client_id": "CLI-2026-0001"},
		{"client_id": "CLI-404", "items": doorLine()},
		{"type": "credit", "client_id": "CLI-2026-0001", "items": doorLine()},
		{"client_id": "CLI-2026-0001", "items": []interface{}{map[string]interface{}{"description": "", "quantity": 1, "unit_price": 10}}},
		{"client_id": "CLI-2026-0001", "items": []interface{}{map[string]interface{}{"description": "x", "quantity": 0, "unit_price": 10}}},
		{"client_id": "CLI-2026-0001", "items": []interface{}{map[string]interface{}{"description": "x", "quantity": 1, "unit": "ton", "unit_price": 10}}},
		{"client_id": "CLI-2026-0001", "date": "2026-05-10", "due_date": "2026-05-01", "items": doorLine()},
		{"client_id": "CLI-2026-0001", "discount": -5, "items": doorLine()},
		{"client_id": "CLI-2026-0001", "discount": 999999999, "items": doorLine()},
	}
	for i, body := range cases {
		w := httptest.NewRecorder()
		h.CreateInvoice(w, testutil.JSONRequest("POST", "/api/v1/invoices", body))
		if w.Code != 400 {
			t.Errorf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestInvoiceFinalizeAndPay(t *testing.T) {
	db, h := setupInvoiceTest(t)

	inv := createInvoice(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": doorLine()})
	if inv.Type != "proforma" || inv.Status != "draft" || !strings.HasPrefix(inv.InvoiceNumber, "PRO-") {
		t.Fatalf("Unexpected proforma %+v", inv)
	}

	// proforma invoices are not billed and cannot be paid
	b, _ := clients.Balance(db, "CLI-2026-0001")
	if b.Billed != 0 {
		t.Errorf("Proforma should not be billed, got %v", b.Billed)
	}
	w := httptest.NewRecorder()
	h.PayInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.FinalizeInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 200)
	var final models.Invoice
	testutil.DecodeEnvelope(t, w, &final)
	if final.Type != "final" || final.Status != "pending" || !strings.HasPrefix(final.InvoiceNumber, "FAC-") {
		t.Errorf("Unexpected finalized invoice %+v", final)
	}

	w = httptest.NewRecorder()
	h.FinalizeInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 409)

	b, _ = clients.Balance(db, "CLI-2026-0001")
	if b.Billed != 119000 || b.Due != 119000 {
		t.Errorf("Expected 119000 billed and due, got %+v", b)
	}

	w = httptest.NewRecorder()
	h.PayInvoice(w, testutil.JSONRequest("POST", "/", map[string]string{"method": "cheque", "date": "2026-05-20"}), inv.ID)
	testutil.AssertStatus(t, w, 200)
	var paid struct {
		Invoice       models.Invoice `json:"invoice"`
		TransactionID string         `json:"transaction_id"`
		Amount        float64        `json:"amount"`
	}
	testutil.DecodeEnvelope(t, w, &paid)
	if paid.Invoice.Status != "paid" || paid.Invoice.PaidAt == nil || paid.Amount != 119000 || paid.TransactionID == "" {
		t.Errorf("Unexpected payment result %+v", paid)
	}

	var method, clientID string
	db.QueryRow("SELECT method, client_id FROM transactions WHERE id = ?", paid.TransactionID).Scan(&method, &clientID)
	if method != "cheque" || clientID != "CLI-2026-0001" {
		t.Errorf("Unexpected transaction %s %s", method, clientID)
	}

	b, _ = clients.Balance(db, "CLI-2026-0001")
	if b.Due != 0 {
		t.Errorf("Expected nothing due after payment, got %+v", b)
	}

	w = httptest.NewRecorder()
	h.PayInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.CancelInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 409)
}

func TestPayInvoice_RecordsRemainder(t *testing.T) {
	db, h := setupInvoiceTest(t)
	inv := createInvoice(t, h, map[string]interface{}{"type": "final", "client_id": "CLI-2026-0001", "items": doorLine()})

	_, err := db.Exec(`INSERT INTO transactions (id, amount, type, category, date, client_id, invoice_id)
		VALUES ('TRX-ADV', 19000, 'income', 'advance', '2026-05-02', 'CLI-2026-0001', ?)`, inv.ID)
	if err != nil {
		t.Fatalf("Failed to insert advance: %v", err)
	}

	w := httptest.NewRecorder()
	h.PayInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 200)
	var paid struct {
		Amount float64 `json:"amount"`
	}
	testutil.DecodeEnvelope(t, w, &paid)
	if paid.Amount != 100000 {
		t.Errorf("Expected remaining 100000, got %v", paid.Amount)
	}
	total, _ := sales.InvoicePaid(db, inv.ID)
	if total != 119000 {
		t.Errorf("Expected 119000 paid in total, got %v", total)
	}
}

func TestUpdateAndDeleteInvoice(t *testing.T) {
	_, h := setupInvoiceTest(t)
	proforma := createInvoice(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": doorLine()})
	final := createInvoice(t, h, map[string]interface{}{"type": "final", "client_id": "CLI-2026-0001", "items": doorLine()})

	w := httptest.NewRecorder()
	h.UpdateInvoice(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"client_id": "CLI-2026-0001",
		"items":     []interface{}{map[string]interface{}{"description": "Fenêtre", "quantity": 1, "unit_price": 1000}},
	}), proforma.ID)
	testutil.AssertStatus(t, w, 200)
	var updated models.Invoice
	testutil.DecodeEnvelope(t, w, &updated)
	if updated.Total != 1190 || updated.InvoiceNumber != proforma.InvoiceNumber {
		t.Errorf("Unexpected update result %+v", updated)
	}

	w = httptest.NewRecorder()
	h.UpdateInvoice(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"client_id": "CLI-2026-0001", "items": doorLine(),
	}), final.ID)
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.DeleteInvoice(w, httptest.NewRequest("DELETE", "/", nil), final.ID)
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.DeleteInvoice(w, httptest.NewRequest("DELETE", "/", nil), proforma.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetInvoice(w, httptest.NewRequest("GET", "/", nil), proforma.ID)
	testutil.AssertStatus(t, w, 404)

	w = httptest.NewRecorder()
	h.CancelInvoice(w, httptest.NewRequest("POST", "/", nil), final.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.ListInvoices(w, httptest.NewRequest("GET", "/api/v1/invoices?status=cancelled", nil))
	var list []models.Invoice
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 || list[0].ID != final.ID {
		t.Errorf("Expected only the cancelled invoice, got %+v", list)
	}
}

func TestPrintAndEmailInvoice(t *testing.T) {
	db, h := setupInvoiceTest(t)
	inv := createInvoice(t, h, map[string]interface{}{"type": "final", "client_id": "CLI-2026-0001", "items": doorLine()})

	w := httptest.NewRecorder()
	h.PrintInvoice(w, httptest.NewRequest("GET", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 200)
	if !strings.Contains(w.Body.String(), inv.InvoiceNumber) || !strings.Contains(w.Body.String(), "119 000.00") {
		t.Error("Printed invoice is missing its number or total")
	}

	w = httptest.NewRecorder()
	h.EmailInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 503)

	mail := &stubMailer{}
	h.Mailer = mail
	w = httptest.NewRecorder()
	h.EmailInvoice(w, httptest.NewRequest("POST", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 400)

	db.Exec("UPDATE clients SET email = 'benali@example.dz' WHERE id = 'CLI-2026-0001'")
	h.PDF = &stubPDF{}
	w = httptest.NewRecorder()
	h.EmailInvoice(w, testutil.JSONRequest("POST", "/", map[string]string{"message": "Bonjour"}), inv.ID)
	testutil.AssertStatus(t, w, 200)
	if len(mail.sent) != 1 {
		t.Fatalf("Expected one message, got %d", len(mail.sent))
	}
	msg := mail.sent[0]
	if msg.To != "benali@example.dz" || !strings.Contains(msg.Subject, inv.InvoiceNumber) {
		t.Errorf("Unexpected message header %s / %s", msg.To, msg.Subject)
	}
	if !strings.HasPrefix(msg.Text, "Bonjour") || len(msg.Attachments) != 1 || msg.Attachments[0].Name != inv.InvoiceNumber+".pdf" {
		t.Errorf("Unexpected message body or attachments %+v", msg)
	}

	w = httptest.NewRecorder()
	h.EmailInvoice(w, testutil.JSONRequest("POST", "/", map[string]string{"to": "not-an-email"}), inv.ID)
	testutil.AssertStatus(t, w, 400)
}
