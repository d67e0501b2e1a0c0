package workforce

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// QueryPayments lists worker payments, newest first. Empty filters are
// ignored. Finance reuses it to show salaries next to transactions.
func QueryPayments(q database.Querier, workerID, from, to string) ([]models.WorkerPayment, error) {
	query := `SELECT p.id, p.worker_id, COALESCE(w.name, ''), p.amount, p.date, p.notes, p.created_at
		FROM worker_payments p LEFT JOIN workers w ON w.id = p.worker_id`
	var conds []string
	var args []interface{}
	if workerID != "" {
		conds = append(conds, "p.worker_id = ?")
		args = append(args, workerID)
	}
	if from != "" {
		conds = append(conds, "p.date >= ?")
		args = append(args, from)
	}
	if to != "" {
		conds = append(conds, "p.date <= ?")
		args = append(args, to)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.date DESC, p.id DESC"

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.WorkerPayment{}
	for rows.Next() {
		var p models.WorkerPayment
		if err := rows.Scan(&p.ID, &p.WorkerID, &p.WorkerName, &p.Amount, &p.Date, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListPayments handles GET /api/v1/worker-payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := QueryPayments(h.DB, q.Get("worker_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, list)
}

// RecordPayment handles POST /api/v1/workers/:id/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request, id string) {
	var p models.WorkerPayment
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if p.Date == "" {
		p.Date = time.Now().Format(validation.DateLayout)
	}
	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveFloat(ve, "amount", p.Amount)
	validation.ValidateAmount(ve, "amount", p.Amount)
	validation.ValidateDate(ve, "date", p.Date)
	validation.ValidateMaxLength(ve, "notes", p.Notes, validation.MaxTextLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var name string
	if err := h.DB.QueryRow("SELECT name FROM workers WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "worker not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	res, err := h.DB.Exec("INSERT INTO worker_payments (worker_id, amount, date, notes, created_at) VALUES (?, ?, ?, ?, ?)",
		id, p.Amount, p.Date, p.Notes, time.Now().UTC().Format(auth.TimeLayout))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	pid, _ := res.LastInsertId()
	metrics.RecordPayment("worker", p.Amount)
	h.Audit.Record(r, audit.ActionPay, auth.ModuleWorkers, id, fmt.Sprintf("Paid %.2f to worker %s (#%d)", p.Amount, name, pid))

	wk, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"payment_id": pid, "worker": wk})
}

// DeletePayment handles DELETE /api/v1/worker-payments/:id.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "invalid payment id", 400)
		return
	}
	var workerID string
	var amount float64
	if err := h.DB.QueryRow("SELECT worker_id, amount FROM worker_payments WHERE id = ?", id).Scan(&workerID, &amount); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "payment not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	if _, err := h.DB.Exec("DELETE FROM worker_payments WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleWorkers, workerID, fmt.Sprintf("Deleted payment #%d of %.2f", id, amount))
	response.JSON(w, map[string]interface{}{"status": "deleted", "id": id})
}
