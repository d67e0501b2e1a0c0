package transport

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
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

func queryTrips(q database.Querier, transporterID string) ([]models.TransportTrip, error) {
	rows, err := q.Query(`SELECT id, transporter_id, date, description, project, charge
		FROM transport_trips WHERE transporter_id = ? ORDER BY date DESC, id DESC`, transporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.TransportTrip{}
	for rows.Next() {
		var t models.TransportTrip
		if err := rows.Scan(&t.ID, &t.TransporterID, &t.Date, &t.Description, &t.Project, &t.Charge); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func queryPayments(q database.Querier, transporterID string) ([]models.TransportPayment, error) {
	rows, err := q.Query(`SELECT id, transporter_id, amount, date, notes, transaction_id
		FROM transport_payments WHERE transporter_id = ? ORDER BY date DESC, id DESC`, transporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.TransportPayment{}
	for rows.Next() {
		var p models.TransportPayment
		if err := rows.Scan(&p.ID, &p.TransporterID, &p.Amount, &p.Date, &p.Notes, &p.TransactionID); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (h *Handler) driverName(id string) (string, error) {
	var name string
	err := h.DB.QueryRow("SELECT driver_name FROM transporters WHERE id = ?", id).Scan(&name)
	return name, err
}

// ListTrips handles GET /api/v1/transporters/:id/trips.
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.driverName(id); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "transporter not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	list, err := queryTrips(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, list)
}

// AddTrip handles POST /api/v1/transporters/:id/trips.
func (h *Handler) AddTrip(w http.ResponseWriter, r *http.Request, id string) {
	var t models.TransportTrip
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if t.Date == "" {
		t.Date = time.Now().Format(validation.DateLayout)
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateDate(ve, "date", t.Date)
	validation.ValidateAmount(ve, "charge", t.Charge)
	validation.ValidateMaxLength(ve, "description", t.Description, validation.MaxTextLength)
	validation.ValidateMaxLength(ve, "project", t.Project, 255)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	t.Charge = pricing.Round2(t.Charge)

	name, err := h.driverName(id)
	if err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "transporter not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	res, err := h.DB.Exec("INSERT INTO transport_trips (transporter_id, date, description, project, charge) VALUES (?, ?, ?, ?, ?)",
		id, t.Date, t.Description, t.Project, t.Charge)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	tripID, _ := res.LastInsertId()
	t.ID = int(tripID)
	t.TransporterID = id
	h.Audit.Record(r, audit.ActionCreate, auth.ModuleTransport, id,
		fmt.Sprintf("Trip #%d for %s on %s: %.2f", t.ID, name, t.Date, t.Charge))

	tr, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"trip": t, "transporter": tr})
}

// DeleteTrip handles DELETE /api/v1/transport-trips/:id.
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "invalid trip id", 400)
		return
	}
	var transporterID string
	if err := h.DB.QueryRow("SELECT transporter_id FROM transport_trips WHERE id = ?", id).Scan(&transporterID); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "trip not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	if _, err := h.DB.Exec("DELETE FROM transport_trips WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleTransport, transporterID, fmt.Sprintf("Deleted trip #%d", id))
	response.JSON(w, map[string]interface{}{"status": "deleted", "id": id})
}

// ListPayments handles GET /api/v1/transporters/:id/payments.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.driverName(id); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "transporter not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	list, err := queryPayments(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, list)
}

// RecordPayment handles POST /api/v1/transporters/:id/payments. The payment
// is also booked as a transport expense so it shows in finance.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request, id string) {
	name, err := h.driverName(id)
	if err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "transporter not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	var p clients.PaymentRequest
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := p.Validate(); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	txID := h.NextID("TRX", "transactions", 4)
	desc := "دفعة للناقل " + name
	if p.Notes != "" {
		desc += " - " + p.Notes
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO transactions (id, description, amount, type, category, date, method, status, transporter_id)
		VALUES (?, ?, ?, 'expense', 'transport', ?, ?, 'completed', ?)`, txID, desc, p.Amount, p.Date, p.Method, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	res, err := tx.Exec("INSERT INTO transport_payments (transporter_id, amount, date, notes, transaction_id) VALUES (?, ?, ?, ?, ?)",
		id, p.Amount, p.Date, p.Notes, txID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	pid, _ := res.LastInsertId()
	metrics.RecordPayment("transporter", p.Amount)
	h.Audit.Record(r, audit.ActionPay, auth.ModuleTransport, id, fmt.Sprintf("Paid %.2f to %s (%s)", p.Amount, name, txID))

	tr, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"payment_id": pid, "transaction_id": txID, "transporter": tr})
}

// DeletePayment handles DELETE /api/v1/transport-payments/:id and removes
// the expense transaction booked with it.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		response.Err(w, "invalid payment id", 400)
		return
	}
	var transporterID, txID string
	var amount float64
	err = h.DB.QueryRow("SELECT transporter_id, amount, transaction_id FROM transport_payments WHERE id = ?", id).
		Scan(&transporterID, &amount, &txID)
	if err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "payment not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM transport_payments WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if strings.TrimSpace(txID) != "" {
		if _, err := tx.Exec("DELETE FROM transactions WHERE id = ?", txID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleTransport, transporterID, fmt.Sprintf("Deleted payment #%d of %.2f", id, amount))
	response.JSON(w, map[string]interface{}{"status": "deleted", "id": id})
}
