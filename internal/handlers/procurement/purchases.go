package procurement

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/handlers/inventory"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

const purchaseColumns = `p.id, p.project, p.item, p.quantity, p.total, p.supplier_id, COALESCE(s.name, ''),
	p.material_id, p.status, p.date, p.stocked, p.created_at`

func scanPurchase(s interface{ Scan(...interface{}) error }, p *models.Purchase) error {
	return s.Scan(&p.ID, &p.Project, &p.Item, &p.Quantity, &p.Total, &p.SupplierID, &p.SupplierName,
		&p.MaterialID, &p.Status, &p.Date, &p.Stocked, &p.CreatedAt)
}

// QueryPurchases lists purchases, newest first. Empty filters are ignored.
func QueryPurchases(db *sql.DB, status, supplierID, from, to string) ([]models.Purchase, error) {
	query := "SELECT " + purchaseColumns + " FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id"
	var conds []string
	var args []interface{}
	if status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, status)
	}
	if supplierID != "" {
		conds = append(conds, "p.supplier_id = ?")
		args = append(args, supplierID)
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

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Purchase{}
	for rows.Next() {
		var p models.Purchase
		if err := scanPurchase(rows, &p); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// ListPurchases handles GET /api/v1/purchases.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := QueryPurchases(h.DB, q.Get("status"), q.Get("supplier_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}

func (h *Handler) loadPurchase(id string) (models.Purchase, error) {
	var p models.Purchase
	err := scanPurchase(h.DB.QueryRow("SELECT "+purchaseColumns+
		" FROM purchases p LEFT JOIN suppliers s ON s.id = p.supplier_id WHERE p.id = ?", id), &p)
	return p, err
}

// GetPurchase handles GET /api/v1/purchases/:id.
func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.loadPurchase(id)
	if err == sql.ErrNoRows {
		response.Err(w, "purchase not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) validatePurchase(p *models.Purchase) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	p.Item = strings.TrimSpace(p.Item)
	validation.RequireField(ve, "item", p.Item)
	validation.ValidateMaxLength(ve, "item", p.Item, 255)
	validation.ValidateMaxLength(ve, "project", p.Project, 255)
	validation.ValidatePositiveFloat(ve, "quantity", p.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", p.Quantity)
	validation.ValidateAmount(ve, "total", p.Total)
	p.Total = pricing.Round2(p.Total)
	validation.RequireField(ve, "supplier_id", p.SupplierID)
	validation.ValidateForeignKey(ve, h.DB, "supplier_id", "suppliers", p.SupplierID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "material_id", "materials", p.MaterialID, auth.ReferenceTable)
	if p.Status == "" {
		p.Status = "ordered"
	}
	validation.ValidateEnum(ve, "status", p.Status, validation.ValidPurchaseStatuses)
	if p.Date == "" {
		p.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", p.Date)
	return ve
}

// receive adds a received purchase to its material's stock. The stocked
// flag makes this happen at most once per purchase.
func receive(tx *sql.Tx, p models.Purchase) error {
	if p.Status != "received" || p.MaterialID == "" {
		return nil
	}
	res, err := tx.Exec("UPDATE purchases SET stocked = 1 WHERE id = ? AND stocked = 0", p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	_, err = inventory.AdjustStock(tx, p.MaterialID, p.Quantity, "purchase", p.ID)
	return err
}

// CreatePurchase handles POST /api/v1/purchases.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var p models.Purchase
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := h.validatePurchase(&p); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	p.ID = h.NextID("PO", "purchases", 4)
	now := time.Now().UTC().Format(auth.TimeLayout)

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO purchases (id, project, item, quantity, total, supplier_id, material_id, status, date,
		stocked, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.ID, p.Project, p.Item, p.Quantity, p.Total, p.SupplierID, p.MaterialID, p.Status, p.Date, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := receive(tx, p); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	created, err := h.loadPurchase(p.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleSuppliers, p.ID,
		fmt.Sprintf("Created purchase %s: %s from %s", p.ID, p.Item, created.SupplierName), nil, created)
	response.JSON(w, created)
}

// UpdatePurchase handles PUT /api/v1/purchases/:id. Received purchases are
// locked because their stock has been booked, and status never moves back.
func (h *Handler) UpdatePurchase(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.loadPurchase(id)
	if err == sql.ErrNoRows {
		response.Err(w, "purchase not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if before.Status == "received" {
		response.Err(w, "received purchases cannot be edited", 409)
		return
	}

	var p models.Purchase
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if p.Status == "" {
		p.Status = before.Status
	}
	if ve := h.validatePurchase(&p); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if purchaseFlow[p.Status] < purchaseFlow[before.Status] {
		response.Err(w, fmt.Sprintf("cannot move purchase from %s to %s", before.Status, p.Status), 409)
		return
	}
	p.ID = id

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE purchases SET project = ?, item = ?, quantity = ?, total = ?, supplier_id = ?,
		material_id = ?, status = ?, date = ? WHERE id = ?`,
		p.Project, p.Item, p.Quantity, p.Total, p.SupplierID, p.MaterialID, p.Status, p.Date, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := receive(tx, p); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.loadPurchase(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleSuppliers, id, "Updated purchase "+id, before, after)
	response.JSON(w, after)
}

// purchaseFlow is the order a purchase moves through.
var purchaseFlow = map[string]int{"ordered": 0, "shipping": 1, "received": 2}

// SetPurchaseStatus handles POST /api/v1/purchases/:id/status with
// {"status": "..."}. Status only moves forward.
func (h *Handler) SetPurchaseStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "status", body.Status, validation.ValidPurchaseStatuses)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	p, err := h.loadPurchase(id)
	if err == sql.ErrNoRows {
		response.Err(w, "purchase not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if purchaseFlow[body.Status] <= purchaseFlow[p.Status] {
		response.Err(w, fmt.Sprintf("cannot move purchase from %s to %s", p.Status, body.Status), 409)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE purchases SET status = ? WHERE id = ?", body.Status, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	p.Status = body.Status
	if err := receive(tx, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.Err(w, "linked material no longer exists", 409)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, audit.ActionUpdate, auth.ModuleSuppliers, id, fmt.Sprintf("Purchase %s %s", id, body.Status))
	after, err := h.loadPurchase(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, after)
}

// DeletePurchase handles DELETE /api/v1/purchases/:id.
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.loadPurchase(id)
	if err == sql.ErrNoRows {
		response.Err(w, "purchase not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if p.Stocked {
		response.Err(w, "received purchases cannot be deleted", 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM purchases WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleSuppliers, id, "Deleted purchase "+id+" ("+p.Item+")")
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}
