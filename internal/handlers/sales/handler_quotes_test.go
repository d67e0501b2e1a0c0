package sales_test

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/handlers/sales"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

type stubPDF struct{ calls int }

func (p *stubPDF) Render(ctx context.Context, html []byte) ([]byte, error) {
	p.calls++
	return []byte("%PDF-1.4 stub"), nil
}

type stubMailer struct{ sent []mailer.Message }

func (m *stubMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

// newTestHandler creates a sales.Handler with default rates and no PDF or mail.
func newTestHandler(t *testing.T, db *sql.DB) *sales.Handler {
	t.Helper()
	printer, err := printing.NewRenderer("DZD")
	if err != nil {
		t.Fatalf("Failed to build renderer: %v", err)
	}
	return &sales.Handler{
		DB:        db,
		Audit:     audit.NewRecorder(db, nil, nil),
		Estimator: pricing.NewEstimator(pricing.DefaultRates()),
		Invoicing: config.Default().Invoicing,
		NextID:    testutil.NextID(),
		Printer:   printer,
	}
}

func slidingWindow(qty int) map[string]interface{} {
	return map[string]interface{}{
		"type": "sliding", "profile_type": "aluminium", "glass_type": "simple_6mm",
		"width": 100, "height": 100, "quantity": qty,
	}
}

func createQuote(t *testing.T, h *sales.Handler, body map[string]interface{}) models.Quote {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateQuote(w, testutil.JSONRequest("POST", "/api/v1/quotes", body))
	testutil.AssertStatus(t, w, 200)
	var q models.Quote
	testutil.DecodeEnvelope(t, w, &q)
	return q
}

func TestEstimate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)

	w := httptest.NewRecorder()
	h.Estimate(w, testutil.JSONRequest("POST", "/api/v1/quotes/estimate", slidingWindow(2)))
	testutil.AssertStatus(t, w, 200)
	var b pricing.Breakdown
	testutil.DecodeEnvelope(t, w, &b)
	if b.UnitPrice != 12260 || b.TotalPrice != 24520 {
		t.Errorf("Expected 12260 / 24520, got %v / %v", b.UnitPrice, b.TotalPrice)
	}

	bad := slidingWindow(1)
	bad["width"] = 0
	w = httptest.NewRecorder()
	h.Estimate(w, testutil.JSONRequest("POST", "/api/v1/quotes/estimate", bad))
	testutil.AssertStatus(t, w, 400)
}

func TestCatalogue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)

	w := httptest.NewRecorder()
	h.Catalogue(w, httptest.NewRequest("GET", "/api/v1/catalogue", nil))
	testutil.AssertStatus(t, w, 200)
	var c pricing.Catalogue
	testutil.DecodeEnvelope(t, w, &c)
	if len(c.WindowTypes) != 5 || len(c.Profiles) != 2 || len(c.Glass) != 4 {
		t.Errorf("Unexpected catalogue %+v", c)
	}
}

func TestCreateQuote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")

	q := createQuote(t, h, map[string]interface{}{
		"client_id": "CLI-2026-0001", "date": "2026-03-01", "discount": 520,
		"items": []interface{}{slidingWindow(2)},
	})
	if q.ID != "DEV-2026-0001" || q.Status != "draft" {
		t.Errorf("Unexpected quote header %+v", q)
	}
	if q.ValidUntil != "2026-03-31" {
		t.Errorf("Expected valid_until 2026-03-31, got %s", q.ValidUntil)
	}
	if q.Subtotal != 24520 || q.Discount != 520 || q.Tax != 4560 || q.Total != 28560 {
		t.Errorf("Unexpected totals %+v", q)
	}
	if len(q.Items) != 1 || q.Items[0].UnitPrice != 12260 || q.Items[0].ProfileLength != 4.8 {
		t.Errorf("Unexpected items %+v", q.Items)
	}
	if q.ClientName != "Benali" {
		t.Errorf("Expected client name Benali, got %q", q.ClientName)
	}
}

func TestCreateQuote_UnitPriceOverride(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")

	item := slidingWindow(2)
	item["unit_price_override"] = 10000
	q := createQuote(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": []interface{}{item}})
	if q.Items[0].UnitPrice != 10000 || q.Items[0].TotalPrice != 20000 || q.Subtotal != 20000 {
		t.Errorf("Override not applied: %+v", q.Items[0])
	}
	if q.Items[0].MaterialPrice != 7260 {
		t.Errorf("Breakdown should still be stored, got material %v", q.Items[0].MaterialPrice)
	}
}

func TestCreateQuote_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")

	badGlass := slidingWindow(1)
	badGlass["glass_type"] = "triple"
	badType := slidingWindow(1)
	badType["type"] = "skylight"

	cases := []map[string]interface{}{
		{"client_id": "CLI-2026-0001"},
		{"client_id": "CLI-404", "items": []interface{}{slidingWindow(1)}},
		{"client_id": "CLI-2026-0001", "items": []interface{}{badGlass}},
		{"client_id": "CLI-2026-0001", "items": []interface{}{badType}},
		{"client_id": "CLI-2026-0001", "discount": 999999, "items": []interface{}{slidingWindow(1)}},
		{"client_id": "CLI-2026-0001", "date": "2026-03-10", "valid_until": "2026-03-01", "items": []interface{}{slidingWindow(1)}},
	}
	for i, body := range cases {
		w := httptest.NewRecorder()
		h.CreateQuote(w, testutil.JSONRequest("POST", "/api/v1/quotes", body))
		if w.Code != 400 {
			t.Errorf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestQuoteLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	q := createQuote(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": []interface{}{slidingWindow(1)}})

	// drafts cannot be converted
	w := httptest.NewRecorder()
	h.ConvertToInvoice(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 409)

	// update reprices
	w = httptest.NewRecorder()
	h.UpdateQuote(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"client_id": "CLI-2026-0001", "items": []interface{}{slidingWindow(3)},
	}), q.ID)
	testutil.AssertStatus(t, w, 200)
	var updated models.Quote
	testutil.DecodeEnvelope(t, w, &updated)
	if updated.Subtotal != 36780 {
		t.Errorf("Expected subtotal 36780 after update, got %v", updated.Subtotal)
	}

	w = httptest.NewRecorder()
	h.ConfirmQuote(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)
	var confirmed models.Quote
	testutil.DecodeEnvelope(t, w, &confirmed)
	if confirmed.Status != "confirmed" || confirmed.ConfirmedAt == nil {
		t.Errorf("Expected confirmed quote with timestamp, got %+v", confirmed)
	}

	for name, call := range map[string]func(){
		"confirm again": func() { h.ConfirmQuote(w, httptest.NewRequest("POST", "/", nil), q.ID) },
		"reject":        func() { h.RejectQuote(w, httptest.NewRequest("POST", "/", nil), q.ID) },
		"update": func() {
			h.UpdateQuote(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
				"client_id": "CLI-2026-0001", "items": []interface{}{slidingWindow(1)},
			}), q.ID)
		},
		"delete": func() { h.DeleteQuote(w, httptest.NewRequest("DELETE", "/", nil), q.ID) },
	} {
		w = httptest.NewRecorder()
		call()
		if w.Code != 409 {
			t.Errorf("%s on confirmed quote: expected 409, got %d", name, w.Code)
		}
	}
}

func TestConvertQuote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	q := createQuote(t, h, map[string]interface{}{
		"client_id": "CLI-2026-0001", "discount": 520, "items": []interface{}{slidingWindow(2)},
	})
	w := httptest.NewRecorder()
	h.ConfirmQuote(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.ConvertToInvoice(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	if inv.Type != "proforma" || inv.Status != "draft" || !strings.HasPrefix(inv.InvoiceNumber, "PRO-") {
		t.Errorf("Unexpected invoice header %+v", inv)
	}
	if inv.Amount != 24000 || inv.Tax != 4560 || inv.Total != 28560 || inv.QuoteID != q.ID {
		t.Errorf("Unexpected invoice totals %+v", inv)
	}
	if len(inv.Items) != 1 || !strings.Contains(inv.Items[0].Description, "100x100") {
		t.Errorf("Unexpected invoice items %+v", inv.Items)
	}

	w = httptest.NewRecorder()
	h.ConvertToInvoice(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.ConvertToProject(w, testutil.JSONRequest("POST", "/", map[string]string{"name": "Villa Sétif"}), q.ID)
	testutil.AssertStatus(t, w, 200)
	var total float64
	var name, status string
	db.QueryRow("SELECT name, status, total_price FROM projects WHERE quote_id = ?", q.ID).Scan(&name, &status, &total)
	if name != "Villa Sétif" || status != "pending" || total != 28560 {
		t.Errorf("Unexpected project %s %s %v", name, status, total)
	}

	w = httptest.NewRecorder()
	h.ConvertToProject(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 409)
}

func TestListAndDeleteQuotes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	testutil.InsertClient(t, db, "CLI-2026-0002", "Haddad")
	createQuote(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": []interface{}{slidingWindow(1)}})
	q2 := createQuote(t, h, map[string]interface{}{"client_id": "CLI-2026-0002", "items": []interface{}{slidingWindow(1)}})

	w := httptest.NewRecorder()
	h.ListQuotes(w, httptest.NewRequest("GET", "/api/v1/quotes?search=Had", nil))
	var list []models.Quote
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 || list[0].ID != q2.ID {
		t.Errorf("Expected only %s, got %+v", q2.ID, list)
	}

	w = httptest.NewRecorder()
	h.RejectQuote(w, httptest.NewRequest("POST", "/", nil), q2.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.ListQuotes(w, httptest.NewRequest("GET", "/api/v1/quotes?status=rejected", nil))
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 rejected quote, got %d", len(list))
	}

	w = httptest.NewRecorder()
	h.DeleteQuote(w, httptest.NewRequest("DELETE", "/", nil), q2.ID)
	testutil.AssertStatus(t, w, 200)
	var items int
	db.QueryRow("SELECT COUNT(*) FROM quote_items WHERE quote_id = ?", q2.ID).Scan(&items)
	if items != 0 {
		t.Errorf("Expected items to cascade, %d left", items)
	}

	w = httptest.NewRecorder()
	h.GetQuote(w, httptest.NewRequest("GET", "/", nil), q2.ID)
	testutil.AssertStatus(t, w, 404)
}

func TestPrintQuote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	q := createQuote(t, h, map[string]interface{}{"client_id": "CLI-2026-0001", "items": []interface{}{slidingWindow(1)}})

	w := httptest.NewRecorder()
	h.PrintQuote(w, httptest.NewRequest("GET", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), q.ID) || !strings.Contains(w.Body.String(), "Benali") {
		t.Error("Printed quote is missing its id or client")
	}

	w = httptest.NewRecorder()
	h.QuotePDF(w, httptest.NewRequest("GET", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 503)

	pdf := &stubPDF{}
	h.PDF = pdf
	w = httptest.NewRecorder()
	h.QuotePDF(w, httptest.NewRequest("GET", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)
	if w.Header().Get("Content-Type") != "application/pdf" || pdf.calls != 1 {
		t.Errorf("Expected one PDF render, got %d (%s)", pdf.calls, w.Header().Get("Content-Type"))
	}
}

func TestConvertedInvoiceKeepsDiscount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newTestHandler(t, db)
	testutil.InsertClient(t, db, "CLI-2026-0001", "Benali")
	q := createQuote(t, h, map[string]interface{}{
		"client_id": "CLI-2026-0001", "discount": 520, "items": []interface{}{slidingWindow(2)},
	})
	w := httptest.NewRecorder()
	h.ConfirmQuote(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.ConvertToInvoice(w, httptest.NewRequest("POST", "/", nil), q.ID)
	testutil.AssertStatus(t, w, 200)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	if inv.Discount != 520 || inv.Subtotal() != 24520 || inv.Total != 28560 {
		t.Fatalf("Unexpected converted totals %+v", inv)
	}

	w = httptest.NewRecorder()
	h.PrintInvoice(w, httptest.NewRequest("GET", "/", nil), inv.ID)
	testutil.AssertStatus(t, w, 200)
	body := w.Body.String()
	if !strings.Contains(body, "التخفيض") || !strings.Contains(body, "24 520.00") || !strings.Contains(body, "24 000.00") {
		t.Error("Printed invoice should show subtotal, discount and pre-tax amount")
	}

	lines := make([]interface{}, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = map[string]interface{}{
			"description": it.Description, "unit": it.Unit, "quantity": it.Quantity, "unit_price": it.UnitPrice,
		}
	}
	w = httptest.NewRecorder()
	h.UpdateInvoice(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"client_id": "CLI-2026-0001", "quote_id": q.ID, "items": lines,
	}), inv.ID)
	testutil.AssertStatus(t, w, 200)
	var updated models.Invoice
	testutil.DecodeEnvelope(t, w, &updated)
	if updated.Discount != 520 || updated.Amount != 24000 || updated.Total != 28560 {
		t.Errorf("Resending the lines must keep the discount, got %+v", updated)
	}

	w = httptest.NewRecorder()
	h.UpdateInvoice(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"client_id": "CLI-2026-0001", "quote_id": q.ID, "discount": 0, "items": lines,
	}), inv.ID)
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &updated)
	if updated.Discount != 0 || updated.Amount != 24520 || updated.Total != 29178.8 {
		t.Errorf("Expected the discount removed, got %+v", updated)
	}
}
