package procurement_test

import (
	"net/http/httptest"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/handlers/procurement"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func newHandler(t *testing.T) *procurement.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.InsertSupplier(t, db, "SUP-1", "Alu Sétif")
	return &procurement.Handler{DB: db, Audit: audit.NewRecorder(db, nil, nil), NextID: testutil.NextID()}
}

func createPurchase(t *testing.T, h *procurement.Handler, body map[string]interface{}) models.Purchase {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreatePurchase(w, testutil.JSONRequest("POST", "/api/v1/purchases", body))
	testutil.AssertStatus(t, w, 200)
	var p models.Purchase
	testutil.DecodeEnvelope(t, w, &p)
	return p
}

func stock(t *testing.T, h *procurement.Handler, id string) float64 {
	t.Helper()
	var qty float64
	if err := h.DB.QueryRow("SELECT quantity FROM materials WHERE id = ?", id).Scan(&qty); err != nil {
		t.Fatalf("Failed to read stock: %v", err)
	}
	return qty
}

func TestCreateSupplier(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.CreateSupplier(w, testutil.JSONRequest("POST", "/api/v1/suppliers", map[string]string{
		"name": "Verre Plus", "phone": "0555 12 34 56", "material_type": "glass",
	}))
	testutil.AssertStatus(t, w, 200)
	var sp models.Supplier
	testutil.DecodeEnvelope(t, w, &sp)
	if sp.ID == "" || sp.Name != "Verre Plus" {
		t.Errorf("Unexpected supplier %+v", sp)
	}

	w = httptest.NewRecorder()
	h.CreateSupplier(w, testutil.JSONRequest("POST", "/api/v1/suppliers", map[string]string{"name": "  "}))
	testutil.AssertStatus(t, w, 400)
}

func TestPurchaseReceivedStocksOnce(t *testing.T) {
	h := newHandler(t)
	testutil.InsertMaterial(t, h.DB, "MAT-1", "Profilé 40", 5, 2, 4000)

	p := createPurchase(t, h, map[string]interface{}{
		"item": "Profilé 40", "quantity": 10, "total": 40000, "supplier_id": "SUP-1", "material_id": "MAT-1",
	})
	if p.Status != "ordered" || p.SupplierName != "Alu Sétif" || p.Stocked {
		t.Fatalf("Unexpected purchase %+v", p)
	}
	if got := stock(t, h, "MAT-1"); got != 5 {
		t.Errorf("Ordered purchase must not touch stock, got %v", got)
	}

	w := httptest.NewRecorder()
	h.SetPurchaseStatus(w, testutil.JSONRequest("POST", "/", map[string]string{"status": "shipping"}), p.ID)
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.SetPurchaseStatus(w, testutil.JSONRequest("POST", "/", map[string]string{"status": "received"}), p.ID)
	testutil.AssertStatus(t, w, 200)
	var got models.Purchase
	testutil.DecodeEnvelope(t, w, &got)
	if !got.Stocked || got.Status != "received" {
		t.Errorf("Expected a stocked received purchase, got %+v", got)
	}
	if qty := stock(t, h, "MAT-1"); qty != 15 {
		t.Errorf("Expected stock 15 after receipt, got %v", qty)
	}

	for _, status := range []string{"received", "ordered"} {
		w = httptest.NewRecorder()
		h.SetPurchaseStatus(w, testutil.JSONRequest("POST", "/", map[string]string{"status": status}), p.ID)
		testutil.AssertStatus(t, w, 409)
	}
	w = httptest.NewRecorder()
	h.UpdatePurchase(w, testutil.JSONRequest("PUT", "/", map[string]interface{}{
		"item": "Profilé 40", "quantity": 10, "total": 40000, "supplier_id": "SUP-1", "material_id": "MAT-1", "status": "received",
	}), p.ID)
	testutil.AssertStatus(t, w, 409)
	if qty := stock(t, h, "MAT-1"); qty != 15 {
		t.Errorf("Stock must be booked once, got %v", qty)
	}

	w = httptest.NewRecorder()
	h.DeletePurchase(w, httptest.NewRequest("DELETE", "/", nil), p.ID)
	testutil.AssertStatus(t, w, 409)
}

func TestCreatePurchase_ReceivedImmediately(t *testing.T) {
	h := newHandler(t)
	testutil.InsertMaterial(t, h.DB, "MAT-1", "Joint", 0, 0, 50)

	createPurchase(t, h, map[string]interface{}{
		"item": "Joint", "quantity": 100, "total": 5000, "supplier_id": "SUP-1", "material_id": "MAT-1", "status": "received",
	})
	if qty := stock(t, h, "MAT-1"); qty != 100 {
		t.Errorf("Expected stock 100, got %v", qty)
	}
}

func TestCreatePurchase_Validation(t *testing.T) {
	h := newHandler(t)
	for i, body := range []map[string]interface{}{
		{"quantity": 1, "supplier_id": "SUP-1"},
		{"item": "x", "quantity": 0, "supplier_id": "SUP-1"},
		{"item": "x", "quantity": 1},
		{"item": "x", "quantity": 1, "supplier_id": "SUP-404"},
		{"item": "x", "quantity": 1, "supplier_id": "SUP-1", "material_id": "MAT-404"},
		{"item": "x", "quantity": 1, "supplier_id": "SUP-1", "status": "lost"},
	} {
		w := httptest.NewRecorder()
		h.CreatePurchase(w, testutil.JSONRequest("POST", "/api/v1/purchases", body))
		if w.Code != 400 {
			t.Errorf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestSupplierBalanceAndPayment(t *testing.T) {
	h := newHandler(t)
	createPurchase(t, h, map[string]interface{}{"item": "Verre", "quantity": 4, "total": 30000, "supplier_id": "SUP-1", "date": "2026-03-01"})
	createPurchase(t, h, map[string]interface{}{"item": "Vis", "quantity": 1, "total": 2000, "supplier_id": "SUP-1", "date": "2026-03-05"})

	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 20000, "date": "2026-03-03", "method": "transfer"}), "SUP-1")
	testutil.AssertStatus(t, w, 200)
	var out struct {
		TransactionID string          `json:"transaction_id"`
		Supplier      models.Supplier `json:"supplier"`
	}
	testutil.DecodeEnvelope(t, w, &out)
	if out.Supplier.Balance.Billed != 32000 || out.Supplier.Balance.Paid != 20000 || out.Supplier.Balance.Due != 12000 {
		t.Errorf("Unexpected balance %+v", out.Supplier.Balance)
	}
	var category string
	h.DB.QueryRow("SELECT category FROM transactions WHERE id = ?", out.TransactionID).Scan(&category)
	if category != "materials" {
		t.Errorf("Expected a materials expense, got %q", category)
	}

	w = httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": -5}), "SUP-1")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.Statement(w, httptest.NewRequest("GET", "/", nil), "SUP-1")
	testutil.AssertStatus(t, w, 200)
	var entries []models.StatementEntry
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[1].Kind != "payment" || entries[1].Running != 10000 || entries[2].Running != 12000 {
		t.Errorf("Unexpected running balance %+v", entries)
	}

	w = httptest.NewRecorder()
	h.ListSuppliers(w, httptest.NewRequest("GET", "/api/v1/suppliers", nil))
	var list struct {
		Suppliers   []models.Supplier `json:"suppliers"`
		Outstanding float64           `json:"total_outstanding"`
	}
	testutil.DecodeEnvelope(t, w, &list)
	if len(list.Suppliers) != 1 || list.Outstanding != 12000 {
		t.Errorf("Unexpected list %+v", list)
	}
}

func TestDeleteSupplier(t *testing.T) {
	h := newHandler(t)
	testutil.InsertSupplier(t, h.DB, "SUP-2", "Unused")
	createPurchase(t, h, map[string]interface{}{"item": "Verre", "quantity": 1, "total": 100, "supplier_id": "SUP-1"})

	w := httptest.NewRecorder()
	h.DeleteSupplier(w, httptest.NewRequest("DELETE", "/", nil), "SUP-1")
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.DeleteSupplier(w, httptest.NewRequest("DELETE", "/", nil), "SUP-2")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.GetSupplier(w, httptest.NewRequest("GET", "/", nil), "SUP-2")
	testutil.AssertStatus(t, w, 404)
}

func TestUpdatePurchase_StatusForwardOnly(t *testing.T) {
	h := newHandler(t)
	p := createPurchase(t, h, map[string]interface{}{
		"item": "Vitrage 6mm", "quantity": 3, "total": 9000, "supplier_id": "SUP-1", "status": "shipping",
	})

	body := map[string]interface{}{
		"item": "Vitrage 6mm", "quantity": 3, "total": 9000, "supplier_id": "SUP-1", "status": "ordered",
	}
	w := httptest.NewRecorder()
	h.UpdatePurchase(w, testutil.JSONRequest("PUT", "/", body), p.ID)
	testutil.AssertStatus(t, w, 409)

	// Omitting the status keeps the current one.
	delete(body, "status")
	body["total"] = 9500
	w = httptest.NewRecorder()
	h.UpdatePurchase(w, testutil.JSONRequest("PUT", "/", body), p.ID)
	testutil.AssertStatus(t, w, 200)
	var got models.Purchase
	testutil.DecodeEnvelope(t, w, &got)
	if got.Status != "shipping" || got.Total != 9500 {
		t.Errorf("Expected shipping purchase with total 9500, got %+v", got)
	}
}
