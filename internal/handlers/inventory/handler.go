package inventory

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for material handlers.
type Handler struct {
	DB     *sql.DB
	Audit  *audit.Recorder
	NextID NextIDFunc
}

// ErrInsufficientStock is returned when a movement would take stock below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

const materialColumns = `id, name, category, unit, quantity, min_quantity, cost_price, selling_price, supplier,
	created_at, updated_at`

func scanMaterial(s interface{ Scan(...interface{}) error }, m *models.Material) error {
	err := s.Scan(&m.ID, &m.Name, &m.Category, &m.Unit, &m.Quantity, &m.MinQuantity, &m.CostPrice,
		&m.SellingPrice, &m.Supplier, &m.CreatedAt, &m.UpdatedAt)
	m.LowStock = m.Quantity <= m.MinQuantity
	return err
}

// Query lists materials by name. lowStock keeps only those at or below
// their minimum quantity.
func Query(db *sql.DB, search, category string, lowStock bool) ([]models.Material, error) {
	query := "SELECT " + materialColumns + " FROM materials"
	var conds []string
	var args []interface{}
	if search != "" {
		conds = append(conds, "(name LIKE ? OR supplier LIKE ?)")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	if category != "" {
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	if lowStock {
		conds = append(conds, "quantity <= min_quantity")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY quantity ASC, name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Material{}
	for rows.Next() {
		var m models.Material
		if err := scanMaterial(rows, &m); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListMaterials handles GET /api/v1/materials.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := Query(h.DB, q.Get("search"), q.Get("category"), q.Get("low_stock") == "true")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}

func (h *Handler) load(id string) (models.Material, error) {
	var m models.Material
	err := scanMaterial(h.DB.QueryRow("SELECT "+materialColumns+" FROM materials WHERE id = ?", id), &m)
	return m, err
}

// GetMaterial handles GET /api/v1/materials/:id.
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request, id string) {
	m, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "material not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, m)
}

func validateMaterial(m *models.Material) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	m.Name = strings.TrimSpace(m.Name)
	validation.RequireField(ve, "name", m.Name)
	validation.ValidateMaxLength(ve, "name", m.Name, 200)
	validation.ValidateMaxLength(ve, "category", m.Category, 100)
	if m.Unit == "" {
		m.Unit = "piece"
	}
	validation.ValidateEnum(ve, "unit", m.Unit, validation.ValidMaterialUnits)
	validation.ValidateNonNegativeFloat(ve, "quantity", m.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", m.Quantity)
	validation.ValidateNonNegativeFloat(ve, "min_quantity", m.MinQuantity)
	validation.ValidateAmount(ve, "cost_price", m.CostPrice)
	validation.ValidateAmount(ve, "selling_price", m.SellingPrice)
	validation.ValidateMaxLength(ve, "supplier", m.Supplier, 200)
	return ve
}

// CreateMaterial handles POST /api/v1/materials.
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var m models.Material
	if err := response.DecodeBody(r, &m); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateMaterial(&m); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	m.ID = h.NextID("MAT", "materials", 4)
	now := time.Now().UTC().Format(auth.TimeLayout)
	_, err := h.DB.Exec(`INSERT INTO materials (id, name, category, unit, quantity, min_quantity, cost_price,
		selling_price, supplier, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Category, m.Unit, m.Quantity, m.MinQuantity, m.CostPrice, m.SellingPrice, m.Supplier, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	m.CreatedAt, m.UpdatedAt = now, now
	m.LowStock = m.Quantity <= m.MinQuantity

	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleInventory, m.ID, "Created material "+m.Name, nil, m)
	response.JSON(w, m)
}

// UpdateMaterial handles PUT /api/v1/materials/:id. A quantity change is
// logged as a stock movement.
func (h *Handler) UpdateMaterial(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "material not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var m models.Material
	if err := response.DecodeBody(r, &m); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateMaterial(&m); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`UPDATE materials SET name = ?, category = ?, unit = ?, quantity = ?, min_quantity = ?,
		cost_price = ?, selling_price = ?, supplier = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.Category, m.Unit, m.Quantity, m.MinQuantity, m.CostPrice, m.SellingPrice, m.Supplier,
		time.Now().UTC().Format(auth.TimeLayout), id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if delta := m.Quantity - before.Quantity; delta != 0 {
		if _, err := tx.Exec("INSERT INTO stock_movements (material_id, delta, reason) VALUES (?, ?, 'edit')", id, delta); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleInventory, id, "Updated material "+after.Name, before, after)
	response.JSON(w, after)
}

// Open purchases still book stock into the material on receipt.
var materialReferences = []validation.Ref{
	{Table: "purchases", Col: "material_id", Where: "status != 'received'"},
}

// DeleteMaterial handles DELETE /api/v1/materials/:id.
func (h *Handler) DeleteMaterial(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM materials WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "material not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	ref, err := validation.FindReference(h.DB, id, materialReferences)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if ref != "" {
		response.Err(w, fmt.Sprintf("material %s is referenced by open %s", id, ref), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM materials WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleInventory, id, "Deleted material "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}

// AdjustStock moves a material's quantity by delta inside tx and records
// the movement. Stock never goes below zero.
func AdjustStock(tx *sql.Tx, materialID string, delta float64, reason, reference string) (float64, error) {
	var qty float64
	if err := tx.QueryRow("SELECT quantity FROM materials WHERE id = ?", materialID).Scan(&qty); err != nil {
		return 0, err
	}
	next := ledger.Sum(qty, delta)
	if next < 0 {
		return qty, fmt.Errorf("%w: %.2f on hand, %.2f requested", ErrInsufficientStock, qty, -delta)
	}
	now := time.Now().UTC().Format(auth.TimeLayout)
	if _, err := tx.Exec("UPDATE materials SET quantity = ?, updated_at = ? WHERE id = ?", next, now, materialID); err != nil {
		return qty, err
	}
	_, err := tx.Exec("INSERT INTO stock_movements (material_id, delta, reason, reference, created_at) VALUES (?, ?, ?, ?, ?)",
		materialID, delta, reason, reference, now)
	return next, err
}

// Adjust handles POST /api/v1/materials/:id/adjust with {delta, reason, reference}.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Delta     float64 `json:"delta"`
		Reason    string  `json:"reason"`
		Reference string  `json:"reference"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	if body.Delta == 0 {
		ve.Add("delta", "must not be zero")
	}
	validation.ValidateMaxQuantity(ve, "delta", body.Delta)
	validation.ValidateMaxQuantity(ve, "delta", -body.Delta)
	validation.ValidateMaxLength(ve, "reason", body.Reason, validation.MaxStringLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	qty, err := AdjustStock(tx, id, body.Delta, body.Reason, body.Reference)
	if err == sql.ErrNoRows {
		response.Err(w, "material not found", 404)
		return
	}
	if errors.Is(err, ErrInsufficientStock) {
		response.Err(w, err.Error(), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, audit.ActionUpdate, auth.ModuleInventory, id,
		fmt.Sprintf("Stock %+.2f on %s (%s), now %.2f", body.Delta, id, body.Reason, qty))
	m, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, m)
}

// History handles GET /api/v1/materials/:id/movements.
func (h *Handler) History(w http.ResponseWriter, r *http.Request, id string) {
	rows, err := h.DB.Query(`SELECT id, material_id, delta, reason, reference, created_at FROM stock_movements
		WHERE material_id = ? ORDER BY id DESC`, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.StockMovement{}
	for rows.Next() {
		var m models.StockMovement
		if err := rows.Scan(&m.ID, &m.MaterialID, &m.Delta, &m.Reason, &m.Reference, &m.CreatedAt); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, m)
	}
	response.JSON(w, items)
}

// Valuation is the stock value at cost.
type Valuation struct {
	Items      int     `json:"items"`
	TotalValue float64 `json:"total_value"`
	LowStock   int     `json:"low_stock"`
}

// Value computes the stock valuation, Σ quantity × cost price.
func Value(db *sql.DB) (Valuation, error) {
	items, err := Query(db, "", "", false)
	if err != nil {
		return Valuation{}, err
	}
	v := Valuation{Items: len(items)}
	values := make([]float64, 0, len(items))
	for _, m := range items {
		values = append(values, m.Quantity*m.CostPrice)
		if m.LowStock {
			v.LowStock++
		}
	}
	v.TotalValue = ledger.Sum(values...)
	return v, nil
}

// GetValuation handles GET /api/v1/materials/valuation.
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	v, err := Value(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, v)
}

// BulkDelete handles POST /api/v1/materials/bulk-delete.
func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if len(body.IDs) == 0 {
		response.Err(w, "ids required", 400)
		return
	}
	deleted, skipped := 0, 0
	for _, id := range body.IDs {
		if ref, err := validation.FindReference(h.DB, id, materialReferences); err != nil || ref != "" {
			skipped++
			continue
		}
		res, err := h.DB.Exec("DELETE FROM materials WHERE id = ?", id)
		if err != nil {
			continue
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleInventory, "", fmt.Sprintf("Bulk deleted %d materials", deleted))
	response.JSON(w, map[string]int{"deleted": deleted, "skipped": skipped})
}
