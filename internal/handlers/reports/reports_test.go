package reports_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medotmani10/windoorpvc/internal/handlers/reports"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func newHandler(t *testing.T) *reports.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	printer, err := printing.NewRenderer("DZD")
	require.NoError(t, err)

	testutil.InsertClient(t, db, "CLI-1", "Benali")
	testutil.InsertSupplier(t, db, "SUP-1", "Alu Sétif")
	testutil.InsertWorker(t, db, "WRK-1", "Karim", 2000)
	testutil.InsertWorker(t, db, "WRK-2", "Nassim", 1500)
	testutil.InsertMaterial(t, db, "MAT-1", "Vitre", 1, 5, 1500)
	testutil.InsertMaterial(t, db, "MAT-2", "Joint", 50, 5, 80)

	seed := []string{
		"UPDATE workers SET is_active = 0 WHERE id = 'WRK-2'",
		`INSERT INTO invoices (id, invoice_number, type, client_id, total, date, due_date, status)
			VALUES ('INV-1', 'FAC-2026-0001', 'final', 'CLI-1', 100000, '2026-03-01', '2026-03-31', 'pending')`,
		`INSERT INTO invoices (id, invoice_number, type, client_id, total, date, due_date, status)
			VALUES ('INV-2', 'FAC-2026-0002', 'final', 'CLI-1', 30000, '2026-03-02', '2026-04-01', 'cancelled')`,
		`INSERT INTO transactions (id, amount, type, category, date, client_id)
			VALUES ('TRX-1', 60000, 'income', 'client_payment', '2026-03-05', 'CLI-1')`,
		`INSERT INTO transactions (id, amount, type, category, date) VALUES ('TRX-2', 20000, 'expense', 'rent', '2026-02-01')`,
		"INSERT INTO worker_payments (worker_id, amount, date) VALUES ('WRK-1', 5000, '2026-03-10')",
		"INSERT INTO attendance (worker_id, date, morning, evening) VALUES ('WRK-1', '2026-03-09', 1, 1)",
		"INSERT INTO attendance (worker_id, date, morning, evening) VALUES ('WRK-1', '2026-03-10', 1, 0)",
		"INSERT INTO purchases (id, item, quantity, total, supplier_id, status, date) VALUES ('PO-1', 'Verre', 2, 8000, 'SUP-1', 'ordered', '2026-03-02')",
		"INSERT INTO purchases (id, item, quantity, total, supplier_id, status, date) VALUES ('PO-2', 'Joint', 10, 2000, 'SUP-1', 'received', '2026-03-04')",
	}
	for i := 1; i <= 6; i++ {
		status := "completed"
		if i%2 == 0 {
			status = "active"
		}
		seed = append(seed, fmt.Sprintf(`INSERT INTO projects (id, name, client_id, status, total_price, paid_amount, progress, created_at)
			VALUES ('PRJ-%d', 'Chantier %d', 'CLI-1', '%s', 10000, 4000, %d, '2026-01-0%d 10:00:00')`, i, i, status, i*10, i))
	}
	for _, q := range seed {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}
	return &reports.Handler{DB: db, Printer: printer}
}

func TestDashboard(t *testing.T) {
	h := newHandler(t)

	d, err := reports.Dashboard(context.Background(), h.DB, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, d.ActiveProjects)
	assert.Equal(t, 1, d.Workers)
	assert.Equal(t, 1, d.LowStock)
	assert.Equal(t, 100000.0, d.Revenue)
	assert.Equal(t, 25000.0, d.Expenses)
	assert.Equal(t, 75000.0, d.NetProfit)
	require.Len(t, d.Monthly, 12)
	assert.Equal(t, models.MonthPoint{Month: 3, Income: 60000, Expense: 5000}, d.Monthly[2])
	require.Len(t, d.RecentProjects, 5)
	assert.Equal(t, "PRJ-6", d.RecentProjects[0].ID)
}

func TestDashboard_RevenueCountsProforma(t *testing.T) {
	h := newHandler(t)
	_, err := h.DB.Exec(`INSERT INTO invoices (id, invoice_number, type, client_id, total, date, due_date, status)
		VALUES ('INV-3', 'PRO-2026-0001', 'proforma', 'CLI-1', 20000, '2026-03-03', '2026-04-02', 'draft')`)
	require.NoError(t, err)

	d, err := reports.Dashboard(context.Background(), h.DB, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 120000.0, d.Revenue)
	assert.Equal(t, 95000.0, d.NetProfit)
}

func TestGetDashboard(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.GetDashboard(w, httptest.NewRequest("GET", "/api/v1/dashboard", nil))
	testutil.AssertStatus(t, w, 200)
	var d models.DashboardData
	testutil.DecodeEnvelope(t, w, &d)
	if d.Revenue != 100000 || len(d.RecentProjects) != 5 {
		t.Errorf("Unexpected dashboard %+v", d)
	}
}

func TestReportProjects(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.ReportProjects(w, httptest.NewRequest("GET", "/api/v1/reports/projects", nil))
	testutil.AssertStatus(t, w, 200)
	var rep reports.ProjectsReport
	testutil.DecodeEnvelope(t, w, &rep)
	if rep.Count != 6 || rep.TotalValue != 60000 || rep.Remaining != 36000 || rep.AvgProgress != 35 {
		t.Errorf("Unexpected report %+v", rep)
	}
	if rep.ByStatus["active"] != 3 || rep.ByStatus["completed"] != 3 {
		t.Errorf("Unexpected status counts %v", rep.ByStatus)
	}

	w = httptest.NewRecorder()
	h.ReportProjects(w, httptest.NewRequest("GET", "/api/v1/reports/projects?status=active&format=html", nil))
	testutil.AssertStatus(t, w, 200)
	body := w.Body.String()
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") || !strings.Contains(body, "تقرير المشاريع") {
		t.Errorf("Expected an HTML report, got %s", body)
	}
	if !strings.Contains(body, "Chantier 2") || strings.Contains(body, "Chantier 1<") {
		t.Error("Expected only active projects in the printed report")
	}
}

func TestReportFinance(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.ReportFinance(w, httptest.NewRequest("GET", "/api/v1/reports/finance?from=2026-03-01&to=2026-03-31", nil))
	testutil.AssertStatus(t, w, 200)
	var rep reports.FinanceReport
	testutil.DecodeEnvelope(t, w, &rep)
	if rep.Income != 60000 || rep.Expense != 5000 || rep.Balance != 55000 {
		t.Errorf("Unexpected totals %+v", rep)
	}
	if rep.ByCategory["salary"] != 5000 || len(rep.Transactions) != 2 {
		t.Errorf("Expected the salary row in March, got %+v", rep)
	}
}

func TestReportPurchases(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.ReportPurchases(w, httptest.NewRequest("GET", "/api/v1/reports/purchases", nil))
	testutil.AssertStatus(t, w, 200)
	var rep reports.PurchasesReport
	testutil.DecodeEnvelope(t, w, &rep)
	if rep.Count != 2 || rep.Total != 10000 || rep.Received != 2000 || rep.Pending != 8000 {
		t.Errorf("Unexpected report %+v", rep)
	}
}

func TestReportWorkers(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.ReportWorkers(w, httptest.NewRequest("GET", "/api/v1/reports/workers", nil))
	testutil.AssertStatus(t, w, 200)
	var rep reports.WorkersReport
	testutil.DecodeEnvelope(t, w, &rep)
	if len(rep.Workers) != 2 || rep.DaysWorked != 1.5 {
		t.Errorf("Unexpected workers %+v", rep)
	}
	if rep.Totals.Billed != 3000 || rep.Totals.Advance != 2000 || rep.Totals.Outstanding != 0 {
		t.Errorf("Unexpected totals %+v", rep.Totals)
	}

	w = httptest.NewRecorder()
	h.ReportWorkers(w, httptest.NewRequest("GET", "/api/v1/reports/workers?format=html&print=1", nil))
	testutil.AssertStatus(t, w, 200)
	if !strings.Contains(w.Body.String(), "Karim") {
		t.Error("Expected worker rows in the printed report")
	}
}

func TestReportHTML_NoPrinter(t *testing.T) {
	h := newHandler(t)
	h.Printer = nil
	w := httptest.NewRecorder()
	h.ReportWorkers(w, httptest.NewRequest("GET", "/api/v1/reports/workers?format=html", nil))
	testutil.AssertStatus(t, w, 503)
}
