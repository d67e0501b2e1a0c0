// Package transport manages hired drivers, the trips they make for the
// workshop and what they are paid.
package transport

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

// Handler holds dependencies for transport handlers.
type Handler struct {
	DB     *sql.DB
	Audit  *audit.Recorder
	NextID NextIDFunc
}

var transporterReferences = []validation.Ref{
	{Table: "transport_trips", Col: "transporter_id"},
	{Table: "transport_payments", Col: "transporter_id"},
	{Table: "transactions", Col: "transporter_id"},
}

// Balance is Σ trip charges against Σ payments. Nothing is stored.
func Balance(q database.Querier, transporterID string) (ledger.Balance, error) {
	var charged, paid float64
	if err := q.QueryRow("SELECT COALESCE(SUM(charge), 0) FROM transport_trips WHERE transporter_id = ?", transporterID).Scan(&charged); err != nil {
		return ledger.Balance{}, err
	}
	if err := q.QueryRow("SELECT COALESCE(SUM(amount), 0) FROM transport_payments WHERE transporter_id = ?", transporterID).Scan(&paid); err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Compute(charged, paid), nil
}

const transporterColumns = "id, driver_name, vehicle_type, phone, status, created_at"

func scanTransporter(s interface{ Scan(...interface{}) error }, t *models.Transporter) error {
	return s.Scan(&t.ID, &t.DriverName, &t.VehicleType, &t.Phone, &t.Status, &t.CreatedAt)
}

// QueryTransporters lists transporters by driver name with balances.
func QueryTransporters(db *sql.DB, search, status string) ([]models.Transporter, error) {
	query := "SELECT " + transporterColumns + " FROM transporters"
	var conds []string
	var args []interface{}
	if search != "" {
		conds = append(conds, "(driver_name LIKE ? OR vehicle_type LIKE ?)")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY driver_name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	list := []models.Transporter{}
	for rows.Next() {
		var t models.Transporter
		if err := scanTransporter(rows, &t); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		if list[i].Balance, err = Balance(db, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// ListTransporters handles GET /api/v1/transporters.
func (h *Handler) ListTransporters(w http.ResponseWriter, r *http.Request) {
	list, err := QueryTransporters(h.DB, r.URL.Query().Get("search"), r.URL.Query().Get("status"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	balances := make([]ledger.Balance, len(list))
	for i, t := range list {
		balances[i] = t.Balance
	}
	agg := ledger.Aggregate(balances)
	response.JSON(w, map[string]interface{}{
		"transporters":      list,
		"total_outstanding": agg.Outstanding,
		"total_advance":     agg.Advance,
	})
}

func (h *Handler) load(id string) (models.Transporter, error) {
	var t models.Transporter
	if err := scanTransporter(h.DB.QueryRow("SELECT "+transporterColumns+" FROM transporters WHERE id = ?", id), &t); err != nil {
		return t, err
	}
	var err error
	t.Balance, err = Balance(h.DB, id)
	return t, err
}

// GetTransporter handles GET /api/v1/transporters/:id and includes the
// transporter's trips and payments.
func (h *Handler) GetTransporter(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "transporter not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	trips, err := queryTrips(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	payments, err := queryPayments(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"transporter": t, "trips": trips, "payments": payments})
}

func validateTransporter(t *models.Transporter) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	t.DriverName = strings.TrimSpace(t.DriverName)
	validation.RequireField(ve, "driver_name", t.DriverName)
	validation.ValidateMaxLength(ve, "driver_name", t.DriverName, 200)
	validation.ValidateMaxLength(ve, "vehicle_type", t.VehicleType, 100)
	validation.ValidatePhone(ve, "phone", t.Phone)
	if t.Status == "" {
		t.Status = "active"
	}
	validation.ValidateEnum(ve, "status", t.Status, validation.ValidTransporterStatuses)
	return ve
}

// CreateTransporter handles POST /api/v1/transporters.
func (h *Handler) CreateTransporter(w http.ResponseWriter, r *http.Request) {
	var t models.Transporter
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateTransporter(&t); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	t.ID = h.NextID("TRN", "transporters", 4)
	_, err := h.DB.Exec(`INSERT INTO transporters (id, driver_name, vehicle_type, phone, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, t.ID, t.DriverName, t.VehicleType, t.Phone, t.Status,
		time.Now().UTC().Format(auth.TimeLayout))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	created, err := h.load(t.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleTransport, t.ID, "Created transporter "+t.DriverName, nil, created)
	response.JSON(w, created)
}

// UpdateTransporter handles PUT /api/v1/transporters/:id.
func (h *Handler) UpdateTransporter(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "transporter not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var t models.Transporter
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateTransporter(&t); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	_, err = h.DB.Exec("UPDATE transporters SET driver_name = ?, vehicle_type = ?, phone = ?, status = ? WHERE id = ?",
		t.DriverName, t.VehicleType, t.Phone, t.Status, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleTransport, id, "Updated transporter "+after.DriverName, before, after)
	response.JSON(w, after)
}

// DeleteTransporter handles DELETE /api/v1/transporters/:id.
func (h *Handler) DeleteTransporter(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT driver_name FROM transporters WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "transporter not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	ref, err := validation.FindReference(h.DB, id, transporterReferences)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if ref != "" {
		response.Err(w, fmt.Sprintf("cannot delete transporter %s: referenced by %s", name, ref), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM transporters WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleTransport, id, "Deleted transporter "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}
