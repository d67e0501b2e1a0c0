package procurement

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// supplierReferences lists the tables that block deleting a supplier.
var supplierReferences = []validation.Ref{
	{Table: "purchases", Col: "supplier_id"},
	{Table: "transactions", Col: "supplier_id"},
}

// SupplierBalance returns what was bought from a supplier, what was paid
// to it and the difference.
func SupplierBalance(q database.Querier, supplierID string) (ledger.Balance, error) {
	var bought, paid float64
	if err := q.QueryRow("SELECT COALESCE(SUM(total), 0) FROM purchases WHERE supplier_id = ?", supplierID).Scan(&bought); err != nil {
		return ledger.Balance{}, err
	}
	err := q.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE supplier_id = ? AND type = 'expense'`, supplierID).Scan(&paid)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Compute(bought, paid), nil
}

const supplierColumns = "id, name, phone, address, material_type, notes, created_at"

func scanSupplier(s interface{ Scan(...interface{}) error }, sp *models.Supplier) error {
	return s.Scan(&sp.ID, &sp.Name, &sp.Phone, &sp.Address, &sp.MaterialType, &sp.Notes, &sp.CreatedAt)
}

// QuerySuppliers lists suppliers by name with their balances.
func QuerySuppliers(db *sql.DB, search string) ([]models.Supplier, error) {
	query := "SELECT " + supplierColumns + " FROM suppliers"
	var args []interface{}
	if search != "" {
		query += " WHERE name LIKE ? OR material_type LIKE ?"
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	query += " ORDER BY name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	items := []models.Supplier{}
	for rows.Next() {
		var sp models.Supplier
		if err := scanSupplier(rows, &sp); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		b, err := SupplierBalance(db, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Balance = b
	}
	return items, nil
}

// ListSuppliers handles GET /api/v1/suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	items, err := QuerySuppliers(h.DB, r.URL.Query().Get("search"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	balances := make([]ledger.Balance, len(items))
	for i, sp := range items {
		balances[i] = sp.Balance
	}
	agg := ledger.Aggregate(balances)
	response.JSON(w, map[string]interface{}{
		"suppliers":         items,
		"total_outstanding": agg.Outstanding,
		"total_advance":     agg.Advance,
	})
}

func (h *Handler) loadSupplier(id string) (models.Supplier, error) {
	var sp models.Supplier
	if err := scanSupplier(h.DB.QueryRow("SELECT "+supplierColumns+" FROM suppliers WHERE id = ?", id), &sp); err != nil {
		return sp, err
	}
	b, err := SupplierBalance(h.DB, id)
	sp.Balance = b
	return sp, err
}

// GetSupplier handles GET /api/v1/suppliers/:id.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, id string) {
	sp, err := h.loadSupplier(id)
	if err == sql.ErrNoRows {
		response.Err(w, "supplier not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, sp)
}

func validateSupplier(sp *models.Supplier) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	sp.Name = strings.TrimSpace(sp.Name)
	validation.RequireField(ve, "name", sp.Name)
	validation.ValidateMaxLength(ve, "name", sp.Name, 255)
	validation.ValidatePhone(ve, "phone", sp.Phone)
	validation.ValidateMaxLength(ve, "address", sp.Address, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "material_type", sp.MaterialType, 255)
	validation.ValidateMaxLength(ve, "notes", sp.Notes, validation.MaxTextLength)
	return ve
}

// CreateSupplier handles POST /api/v1/suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var sp models.Supplier
	if err := response.DecodeBody(r, &sp); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateSupplier(&sp); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	sp.ID = h.NextID("SUP", "suppliers", 4)
	sp.CreatedAt = time.Now().UTC().Format(auth.TimeLayout)
	_, err := h.DB.Exec(`INSERT INTO suppliers (id, name, phone, address, material_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, sp.ID, sp.Name, sp.Phone, sp.Address, sp.MaterialType, sp.Notes, sp.CreatedAt)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	sp.Balance = ledger.Balance{}

	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleSuppliers, sp.ID, "Created supplier "+sp.Name, nil, sp)
	response.JSON(w, sp)
}

// UpdateSupplier handles PUT /api/v1/suppliers/:id.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.loadSupplier(id)
	if err == sql.ErrNoRows {
		response.Err(w, "supplier not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var sp models.Supplier
	if err := response.DecodeBody(r, &sp); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateSupplier(&sp); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec("UPDATE suppliers SET name = ?, phone = ?, address = ?, material_type = ?, notes = ? WHERE id = ?",
		sp.Name, sp.Phone, sp.Address, sp.MaterialType, sp.Notes, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.loadSupplier(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleSuppliers, id, "Updated supplier "+after.Name, before, after)
	response.JSON(w, after)
}

// DeleteSupplier handles DELETE /api/v1/suppliers/:id. Suppliers with
// purchases or payments are kept.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM suppliers WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "supplier not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	ref, err := validation.FindReference(h.DB, id, supplierReferences)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if ref != "" {
		response.Err(w, fmt.Sprintf("cannot delete supplier: referenced by %s", ref), 409)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM suppliers WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleSuppliers, id, "Deleted supplier "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}

// RecordPayment handles POST /api/v1/suppliers/:id/payments. The payment is
// stored as a materials expense linked to the supplier.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM suppliers WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "supplier not found", 404)
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
	desc := "دفعة للمورد " + name
	if p.Notes != "" {
		desc += " - " + p.Notes
	}
	_, err := h.DB.Exec(`INSERT INTO transactions (id, description, amount, type, category, date, method, status, supplier_id)
		VALUES (?, ?, ?, 'expense', 'materials', ?, ?, 'completed', ?)`,
		txID, desc, p.Amount, p.Date, p.Method, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	metrics.RecordPayment("supplier", p.Amount)

	h.Audit.Record(r, audit.ActionPay, auth.ModuleSuppliers, id, fmt.Sprintf("Paid %.2f to supplier %s (%s)", p.Amount, name, txID))
	sp, err := h.loadSupplier(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"transaction_id": txID, "supplier": sp})
}

// Statement handles GET /api/v1/suppliers/:id/statement: purchases and
// payments in date order with the running amount owed.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request, id string) {
	var n int
	if err := h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id = ?", id).Scan(&n); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n == 0 {
		response.Err(w, "supplier not found", 404)
		return
	}

	entries := []models.StatementEntry{}
	rows, err := h.DB.Query("SELECT date, id, total FROM purchases WHERE supplier_id = ?", id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	for rows.Next() {
		e := models.StatementEntry{Kind: "purchase"}
		if err := rows.Scan(&e.Date, &e.Reference, &e.Debit); err != nil {
			rows.Close()
			response.Err(w, err.Error(), 500)
			return
		}
		entries = append(entries, e)
	}
	rows.Close()

	rows, err = h.DB.Query("SELECT date, id, amount FROM transactions WHERE supplier_id = ? AND type = 'expense'", id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	for rows.Next() {
		e := models.StatementEntry{Kind: "payment"}
		if err := rows.Scan(&e.Date, &e.Reference, &e.Credit); err != nil {
			rows.Close()
			response.Err(w, err.Error(), 500)
			return
		}
		entries = append(entries, e)
	}
	rows.Close()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].Kind == "purchase" && entries[j].Kind != "purchase"
	})
	running := 0.0
	for i := range entries {
		running = ledger.Sum(running, entries[i].Debit, -entries[i].Credit)
		entries[i].Running = running
	}
	response.JSON(w, entries)
}
