package workforce

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

func (h *Handler) workerExists(id string) (bool, error) {
	var n int
	err := h.DB.QueryRow("SELECT COUNT(*) FROM workers WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

// ListAttendance handles GET /api/v1/workers/:id/attendance. ?month=YYYY-MM
// narrows the rows to one month.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request, id string) {
	ok, err := h.workerExists(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if !ok {
		response.Err(w, "worker not found", 404)
		return
	}

	query := "SELECT id, worker_id, date, morning, evening FROM attendance WHERE worker_id = ?"
	args := []interface{}{id}
	if month := r.URL.Query().Get("month"); month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			response.Err(w, "month: must be YYYY-MM", 400)
			return
		}
		query += " AND date LIKE ?"
		args = append(args, month+"-%")
	}
	query += " ORDER BY date"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	list := []models.Attendance{}
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.WorkerID, &a.Date, &a.Morning, &a.Evening); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		list = append(list, a)
	}
	response.JSON(w, list)
}

// ToggleAttendance handles POST /api/v1/workers/:id/attendance with
// {"date": "YYYY-MM-DD", "half": "morning"|"evening"}. The half-day flips;
// a day with neither half left is removed.
func (h *Handler) ToggleAttendance(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Date string `json:"date"`
		Half string `json:"half"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if body.Date == "" {
		body.Date = time.Now().Format(validation.DateLayout)
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateDate(ve, "date", body.Date)
	validation.ValidateEnum(ve, "half", body.Half, validation.ValidAttendanceHalves)
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

	// half is one of two known column names, checked above.
	col := body.Half
	morning, evening := 0, 0
	if col == "morning" {
		morning = 1
	} else {
		evening = 1
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO attendance (worker_id, date, morning, evening) VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET `+col+` = 1 - `+col, id, body.Date, morning, evening)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	a := models.Attendance{WorkerID: id, Date: body.Date}
	err = tx.QueryRow("SELECT id, morning, evening FROM attendance WHERE worker_id = ? AND date = ?", id, body.Date).
		Scan(&a.ID, &a.Morning, &a.Evening)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if !a.Morning && !a.Evening {
		if _, err := tx.Exec("DELETE FROM attendance WHERE id = ?", a.ID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		a.ID = 0
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, audit.ActionUpdate, auth.ModuleWorkers, id,
		fmt.Sprintf("Attendance %s %s for %s: morning=%t evening=%t", body.Date, body.Half, name, a.Morning, a.Evening))
	wk, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"attendance": a, "worker": wk})
}
