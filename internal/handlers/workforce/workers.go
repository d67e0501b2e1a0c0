// Package workforce serves workers, their half-day attendance and the
// payments made to them.
package workforce

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for workforce handlers.
type Handler struct {
	DB     *sql.DB
	Audit  *audit.Recorder
	NextID NextIDFunc
}

const workerColumns = "id, name, trade, phone, daily_rate, is_active, current_project, created_at"

func scanWorker(s interface{ Scan(...interface{}) error }, wk *models.Worker) error {
	return s.Scan(&wk.ID, &wk.Name, &wk.Trade, &wk.Phone, &wk.DailyRate, &wk.IsActive, &wk.CurrentProject, &wk.CreatedAt)
}

// attendanceByWorker loads every attendance row, keyed by worker.
func attendanceByWorker(q database.Querier, workerID string) (map[string][]ledger.HalfDays, error) {
	query := "SELECT worker_id, morning, evening FROM attendance"
	var args []interface{}
	if workerID != "" {
		query += " WHERE worker_id = ?"
		args = append(args, workerID)
	}
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]ledger.HalfDays{}
	for rows.Next() {
		var id string
		var hd ledger.HalfDays
		if err := rows.Scan(&id, &hd.Morning, &hd.Evening); err != nil {
			return nil, err
		}
		out[id] = append(out[id], hd)
	}
	return out, rows.Err()
}

func paidByWorker(q database.Querier) (map[string]float64, error) {
	rows, err := q.Query("SELECT worker_id, COALESCE(SUM(amount), 0) FROM worker_payments GROUP BY worker_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var id string
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, rows.Err()
}

// QueryWorkers lists workers by name with days worked and their balance:
// earned from attendance minus payments. activeOnly hides inactive workers.
func QueryWorkers(db *sql.DB, search string, activeOnly bool) ([]models.Worker, error) {
	query := "SELECT " + workerColumns + " FROM workers"
	var conds []string
	var args []interface{}
	if search != "" {
		conds = append(conds, "(name LIKE ? OR trade LIKE ?)")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	if activeOnly {
		conds = append(conds, "is_active = 1")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	list := []models.Worker{}
	for rows.Next() {
		var wk models.Worker
		if err := scanWorker(rows, &wk); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, wk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	att, err := attendanceByWorker(db, "")
	if err != nil {
		return nil, err
	}
	paid, err := paidByWorker(db)
	if err != nil {
		return nil, err
	}
	for i := range list {
		fill(&list[i], att[list[i].ID], paid[list[i].ID])
	}
	return list, nil
}

func fill(wk *models.Worker, att []ledger.HalfDays, paid float64) {
	wk.DaysWorked = ledger.WorkedDays(att)
	wk.Balance = ledger.Compute(ledger.Earned(wk.DaysWorked, wk.DailyRate), paid)
}

// ListWorkers handles GET /api/v1/workers. The totals separate what the
// workshop owes from advances already paid.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	list, err := QueryWorkers(h.DB, r.URL.Query().Get("search"), r.URL.Query().Get("active") == "true")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	balances := make([]ledger.Balance, len(list))
	for i, wk := range list {
		balances[i] = wk.Balance
	}
	agg := ledger.Aggregate(balances)
	response.JSON(w, map[string]interface{}{
		"workers":       list,
		"total_owed":    agg.Outstanding,
		"total_advance": agg.Advance,
		"total_earned":  agg.Billed,
		"total_paid":    agg.Paid,
	})
}

func (h *Handler) load(id string) (models.Worker, error) {
	var wk models.Worker
	if err := scanWorker(h.DB.QueryRow("SELECT "+workerColumns+" FROM workers WHERE id = ?", id), &wk); err != nil {
		return wk, err
	}
	att, err := attendanceByWorker(h.DB, id)
	if err != nil {
		return wk, err
	}
	var paid float64
	if err := h.DB.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM worker_payments WHERE worker_id = ?", id).Scan(&paid); err != nil {
		return wk, err
	}
	fill(&wk, att[id], paid)
	return wk, nil
}

// GetWorker handles GET /api/v1/workers/:id.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request, id string) {
	wk, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "worker not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, wk)
}

type workerInput struct {
	Name           string  `json:"name"`
	Trade          string  `json:"trade"`
	Phone          string  `json:"phone"`
	DailyRate      float64 `json:"daily_rate"`
	IsActive       *bool   `json:"is_active"`
	CurrentProject string  `json:"current_project"`
}

func (in *workerInput) validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	in.Name = strings.TrimSpace(in.Name)
	validation.RequireField(ve, "name", in.Name)
	validation.ValidateMaxLength(ve, "name", in.Name, 200)
	validation.ValidateMaxLength(ve, "trade", in.Trade, 100)
	validation.ValidatePhone(ve, "phone", in.Phone)
	validation.ValidateAmount(ve, "daily_rate", in.DailyRate)
	validation.ValidateMaxLength(ve, "current_project", in.CurrentProject, 255)
	return ve
}

func (in workerInput) active() bool {
	return in.IsActive == nil || *in.IsActive
}

// CreateWorker handles POST /api/v1/workers.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var in workerInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	id := h.NextID("WRK", "workers", 4)
	_, err := h.DB.Exec(`INSERT INTO workers (id, name, trade, phone, daily_rate, is_active, current_project, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, id, in.Name, in.Trade, in.Phone, in.DailyRate,
		database.BoolInt(in.active()), in.CurrentProject, time.Now().UTC().Format(auth.TimeLayout))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	wk, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleWorkers, id, "Created worker "+wk.Name, nil, wk)
	response.JSON(w, wk)
}

// UpdateWorker handles PUT /api/v1/workers/:id.
func (h *Handler) UpdateWorker(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "worker not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var in workerInput
	if err := response.DecodeBody(r, &in); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := in.validate(); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec(`UPDATE workers SET name = ?, trade = ?, phone = ?, daily_rate = ?, is_active = ?,
		current_project = ? WHERE id = ?`, in.Name, in.Trade, in.Phone, in.DailyRate,
		database.BoolInt(in.active()), in.CurrentProject, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleWorkers, id, "Updated worker "+after.Name, before, after)
	response.JSON(w, after)
}

// DeleteWorker handles DELETE /api/v1/workers/:id. Workers who were paid
// are kept; deactivate them instead.
func (h *Handler) DeleteWorker(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM workers WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "worker not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	ref, err := validation.FindReference(h.DB, id, []validation.Ref{{Table: "worker_payments", Col: "worker_id"}})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if ref != "" {
		response.Err(w, fmt.Sprintf("cannot delete worker %s: referenced by %s", name, ref), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM workers WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleWorkers, id, "Deleted worker "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}
