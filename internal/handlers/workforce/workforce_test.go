package workforce_test

import (
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/handlers/workforce"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/testutil"
)

func newHandler(t *testing.T) *workforce.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.InsertWorker(t, db, "WRK-1", "Karim", 2000)
	return &workforce.Handler{DB: db, Audit: audit.NewRecorder(db, nil, nil), NextID: testutil.NextID()}
}

func toggle(t *testing.T, h *workforce.Handler, id, date, half string) models.Attendance {
	t.Helper()
	w := httptest.NewRecorder()
	h.ToggleAttendance(w, testutil.JSONRequest("POST", "/", map[string]string{"date": date, "half": half}), id)
	testutil.AssertStatus(t, w, 200)
	var out struct {
		Attendance models.Attendance `json:"attendance"`
	}
	testutil.DecodeEnvelope(t, w, &out)
	return out.Attendance
}

func TestCreateWorker(t *testing.T) {
	h := newHandler(t)
	w := httptest.NewRecorder()
	h.CreateWorker(w, testutil.JSONRequest("POST", "/api/v1/workers", map[string]interface{}{
		"name": "Sofiane", "trade": "poseur", "daily_rate": 2500,
	}))
	testutil.AssertStatus(t, w, 200)
	var wk models.Worker
	testutil.DecodeEnvelope(t, w, &wk)
	if wk.ID == "" || !wk.IsActive || wk.DailyRate != 2500 {
		t.Errorf("Unexpected worker %+v", wk)
	}

	for i, body := range []map[string]interface{}{
		{"trade": "poseur"},
		{"name": "x", "daily_rate": -1},
		{"name": "x", "phone": "abc"},
	} {
		w := httptest.NewRecorder()
		h.CreateWorker(w, testutil.JSONRequest("POST", "/api/v1/workers", body))
		if w.Code != 400 {
			t.Errorf("case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestToggleAttendance(t *testing.T) {
	h := newHandler(t)

	a := toggle(t, h, "WRK-1", "2026-04-01", "morning")
	if !a.Morning || a.Evening {
		t.Errorf("Expected morning only, got %+v", a)
	}
	a = toggle(t, h, "WRK-1", "2026-04-01", "evening")
	if !a.Morning || !a.Evening {
		t.Errorf("Expected a full day, got %+v", a)
	}
	toggle(t, h, "WRK-1", "2026-04-02", "morning")

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM attendance WHERE worker_id = 'WRK-1'").Scan(&n)
	if n != 2 {
		t.Errorf("Expected one row per day, got %d", n)
	}

	a = toggle(t, h, "WRK-1", "2026-04-02", "morning")
	if a.Morning || a.Evening || a.ID != 0 {
		t.Errorf("Expected the empty day to be removed, got %+v", a)
	}

	w := httptest.NewRecorder()
	h.ListAttendance(w, httptest.NewRequest("GET", "/?month=2026-04", nil), "WRK-1")
	testutil.AssertStatus(t, w, 200)
	var list []models.Attendance
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 || list[0].Date != "2026-04-01" {
		t.Errorf("Unexpected attendance %+v", list)
	}

	w = httptest.NewRecorder()
	h.ToggleAttendance(w, testutil.JSONRequest("POST", "/", map[string]string{"date": "2026-04-01", "half": "night"}), "WRK-1")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.ToggleAttendance(w, testutil.JSONRequest("POST", "/", map[string]string{"date": "2026-04-01", "half": "morning"}), "WRK-404")
	testutil.AssertStatus(t, w, 404)
}

func TestWorkerBalances(t *testing.T) {
	h := newHandler(t)
	testutil.InsertWorker(t, h.DB, "WRK-2", "Nassim", 1000)

	toggle(t, h, "WRK-1", "2026-04-01", "morning")
	toggle(t, h, "WRK-1", "2026-04-01", "evening")
	toggle(t, h, "WRK-1", "2026-04-02", "evening")

	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 1000, "date": "2026-04-03"}), "WRK-1")
	testutil.AssertStatus(t, w, 200)
	var out struct {
		Worker models.Worker `json:"worker"`
	}
	testutil.DecodeEnvelope(t, w, &out)
	if out.Worker.DaysWorked != 1.5 || out.Worker.Balance.Billed != 3000 || out.Worker.Balance.Due != 2000 {
		t.Errorf("Unexpected balance %+v", out.Worker)
	}

	w = httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 500}), "WRK-2")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 0}), "WRK-2")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.ListWorkers(w, httptest.NewRequest("GET", "/api/v1/workers", nil))
	testutil.AssertStatus(t, w, 200)
	var list struct {
		Workers []models.Worker `json:"workers"`
		Owed    float64         `json:"total_owed"`
		Advance float64         `json:"total_advance"`
	}
	testutil.DecodeEnvelope(t, w, &list)
	if len(list.Workers) != 2 || list.Owed != 2000 || list.Advance != 500 {
		t.Errorf("Unexpected totals %+v", list)
	}

	w = httptest.NewRecorder()
	h.ListPayments(w, httptest.NewRequest("GET", "/api/v1/worker-payments?worker_id=WRK-1", nil))
	var payments []models.WorkerPayment
	testutil.DecodeEnvelope(t, w, &payments)
	if len(payments) != 1 || payments[0].WorkerName != "Karim" {
		t.Errorf("Unexpected payments %+v", payments)
	}
}

func TestDeleteWorker(t *testing.T) {
	h := newHandler(t)
	testutil.InsertWorker(t, h.DB, "WRK-2", "Nassim", 1000)
	toggle(t, h, "WRK-2", "2026-04-01", "morning")

	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.JSONRequest("POST", "/", map[string]interface{}{"amount": 800}), "WRK-1")
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.DeleteWorker(w, httptest.NewRequest("DELETE", "/", nil), "WRK-1")
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.DeleteWorker(w, httptest.NewRequest("DELETE", "/", nil), "WRK-2")
	testutil.AssertStatus(t, w, 200)

	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM attendance WHERE worker_id = 'WRK-2'").Scan(&n)
	if n != 0 {
		t.Errorf("Expected attendance to go with the worker, got %d rows", n)
	}

	var pid int
	h.DB.QueryRow("SELECT id FROM worker_payments WHERE worker_id = 'WRK-1'").Scan(&pid)
	w = httptest.NewRecorder()
	h.DeletePayment(w, httptest.NewRequest("DELETE", "/", nil), strconv.Itoa(pid))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.DeleteWorker(w, httptest.NewRequest("DELETE", "/", nil), "WRK-1")
	testutil.AssertStatus(t, w, 200)
}
