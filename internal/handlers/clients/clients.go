package clients

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
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// references lists the tables that block deleting a client.
var references = []validation.Ref{
	{Table: "quotes", Col: "client_id"},
	{Table: "invoices", Col: "client_id"},
	{Table: "projects", Col: "client_id"},
	{Table: "transactions", Col: "client_id"},
}

// Balances returns every client's ledger: billed is the sum of final,
// non-cancelled invoices and paid the sum of income linked to the client.
func Balances(q database.Querier) (map[string]ledger.Balance, error) {
	billed, err := sumBy(q, `SELECT client_id, COALESCE(SUM(total), 0) FROM invoices
		WHERE type = 'final' AND status != 'cancelled' GROUP BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("client invoices: %w", err)
	}
	paid, err := sumBy(q, `SELECT client_id, COALESCE(SUM(amount), 0) FROM transactions
		WHERE type = 'income' AND client_id != '' GROUP BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("client payments: %w", err)
	}
	out := make(map[string]ledger.Balance, len(billed)+len(paid))
	for id, b := range billed {
		out[id] = ledger.Compute(b, paid[id])
	}
	for id, p := range paid {
		if _, ok := out[id]; !ok {
			out[id] = ledger.Compute(0, p)
		}
	}
	return out, nil
}

func sumBy(q database.Querier, query string, args ...interface{}) (map[string]float64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := map[string]float64{}
	for rows.Next() {
		var id string
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		m[id] = v
	}
	return m, rows.Err()
}

// Balance returns the ledger of one client.
func Balance(q database.Querier, clientID string) (ledger.Balance, error) {
	var billed, paid float64
	err := q.QueryRow(`SELECT COALESCE(SUM(total), 0) FROM invoices
		WHERE client_id = ? AND type = 'final' AND status != 'cancelled'`, clientID).Scan(&billed)
	if err != nil {
		return ledger.Balance{}, err
	}
	err = q.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE client_id = ? AND type = 'income'`, clientID).Scan(&paid)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Compute(billed, paid), nil
}

const clientColumns = `c.id, c.name, c.phone, c.email, c.address, c.category, c.notes, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM projects p WHERE p.client_id = c.id)`

func scanClient(s interface{ Scan(...interface{}) error }, c *models.Client) error {
	return s.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Category, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.Projects)
}

// Query lists clients matching search (name or phone) and category, with balances.
func Query(db *sql.DB, search, category string) ([]models.Client, error) {
	query := "SELECT " + clientColumns + " FROM clients c"
	var conds []string
	var args []interface{}
	if search != "" {
		conds = append(conds, "(c.name LIKE ? OR c.phone LIKE ?)")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	if category != "" {
		conds = append(conds, "c.category = ?")
		args = append(args, category)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	list := []models.Client{}
	for rows.Next() {
		var c models.Client
		if err := scanClient(rows, &c); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balances, err := Balances(db)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Balance = balances[list[i].ID]
	}
	return list, nil
}

// ListClients handles GET /api/v1/clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := Query(h.DB, r.URL.Query().Get("search"), r.URL.Query().Get("category"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	totals := make([]ledger.Balance, len(list))
	for i, c := range list {
		totals[i] = c.Balance
	}
	agg := ledger.Aggregate(totals)
	response.JSON(w, map[string]interface{}{
		"clients":           list,
		"total_outstanding": agg.Outstanding,
		"total_advance":     agg.Advance,
	})
}

// GetClient handles GET /api/v1/clients/:id.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "client not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, c)
}

func (h *Handler) load(id string) (models.Client, error) {
	var c models.Client
	if err := scanClient(h.DB.QueryRow("SELECT "+clientColumns+" FROM clients c WHERE c.id = ?", id), &c); err != nil {
		return c, err
	}
	b, err := Balance(h.DB, id)
	if err != nil {
		return c, err
	}
	c.Balance = b
	return c, nil
}

func validateClient(c *models.Client) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	c.Name = strings.TrimSpace(c.Name)
	validation.RequireField(ve, "name", c.Name)
	validation.ValidateMaxLength(ve, "name", c.Name, 200)
	if c.Category == "" {
		c.Category = "new"
	}
	validation.ValidateEnum(ve, "category", c.Category, validation.ValidClientCategories)
	validation.ValidatePhone(ve, "phone", c.Phone)
	validation.ValidateEmail(ve, "email", c.Email)
	validation.ValidateMaxLength(ve, "address", c.Address, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "notes", c.Notes, validation.MaxTextLength)
	return ve
}

// CreateClient handles POST /api/v1/clients.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateClient(&c); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	c.ID = h.NextID("CLI", "clients", 4)
	now := time.Now().UTC().Format(auth.TimeLayout)
	_, err := h.DB.Exec(`INSERT INTO clients (id, name, phone, email, address, category, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.Category, c.Notes, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	c.CreatedAt, c.UpdatedAt = now, now

	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleClients, c.ID, "Created client "+c.Name, nil, c)
	response.JSON(w, c)
}

// UpdateClient handles PUT /api/v1/clients/:id.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "client not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var c models.Client
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := validateClient(&c); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec(`UPDATE clients SET name = ?, phone = ?, email = ?, address = ?, category = ?, notes = ?,
		updated_at = ? WHERE id = ?`,
		c.Name, c.Phone, c.Email, c.Address, c.Category, c.Notes, time.Now().UTC().Format(auth.TimeLayout), id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleClients, id, "Updated client "+after.Name, before, after)
	response.JSON(w, after)
}

// DeleteClient handles DELETE /api/v1/clients/:id. Clients with quotes,
// invoices, projects or payments are kept.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM clients WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "client not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	ref, err := validation.FindReference(h.DB, id, references)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if ref != "" {
		response.Err(w, fmt.Sprintf("client %s is referenced by %s", id, ref), 409)
		return
	}

	if _, err := h.DB.Exec("DELETE FROM clients WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleClients, id, "Deleted client "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}

// PaymentRequest is a sum received from or paid to a party.
type PaymentRequest struct {
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Method    string  `json:"method"`
	Notes     string  `json:"notes"`
	InvoiceID string  `json:"invoice_id"`
}

// Validate checks the payment fields and fills defaults.
func (p *PaymentRequest) Validate() *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	validation.ValidateAmount(ve, "amount", p.Amount)
	if p.Amount <= 0 {
		ve.Add("amount", "must be positive")
	}
	if p.Date == "" {
		p.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", p.Date)
	if p.Method == "" {
		p.Method = "cash"
	}
	validation.ValidateEnum(ve, "method", p.Method, validation.ValidPaymentMethods)
	validation.ValidateMaxLength(ve, "notes", p.Notes, validation.MaxStringLength)
	return ve
}

// RecordPayment handles POST /api/v1/clients/:id/payments. The payment is
// stored as an income transaction linked to the client.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM clients WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "client not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}

	var p PaymentRequest
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	ve := p.Validate()
	if p.InvoiceID != "" {
		var owner string
		err := h.DB.QueryRow("SELECT client_id FROM invoices WHERE id = ?", p.InvoiceID).Scan(&owner)
		if err != nil || owner != id {
			ve.Add("invoice_id", "must be an invoice of this client")
		}
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	txID := h.NextID("TRX", "transactions", 4)
	desc := "دفعة من العميل " + name
	if p.Notes != "" {
		desc += " - " + p.Notes
	}
	_, err := h.DB.Exec(`INSERT INTO transactions (id, description, amount, type, category, date, method, status, client_id, invoice_id)
		VALUES (?, ?, ?, 'income', 'client_payment', ?, ?, 'completed', ?, ?)`,
		txID, desc, p.Amount, p.Date, p.Method, id, p.InvoiceID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, audit.ActionPay, auth.ModuleClients, id, fmt.Sprintf("Recorded payment %s of %.2f", txID, p.Amount))
	c, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]interface{}{"transaction_id": txID, "client": c})
}

// Statement handles GET /api/v1/clients/:id/statement: final invoices and
// payments in date order with the running amount due.
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request, id string) {
	var exists int
	if err := h.DB.QueryRow("SELECT COUNT(*) FROM clients WHERE id = ?", id).Scan(&exists); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if exists == 0 {
		response.Err(w, "client not found", 404)
		return
	}

	entries, err := statement(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, entries)
}

func statement(db *sql.DB, clientID string) ([]models.StatementEntry, error) {
	entries := []models.StatementEntry{}

	rows, err := db.Query(`SELECT date, invoice_number, total FROM invoices
		WHERE client_id = ? AND type = 'final' AND status != 'cancelled'`, clientID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e models.StatementEntry
		if err := rows.Scan(&e.Date, &e.Reference, &e.Debit); err != nil {
			rows.Close()
			return nil, err
		}
		e.Kind = "invoice"
		entries = append(entries, e)
	}
	rows.Close()

	rows, err = db.Query(`SELECT date, id, amount FROM transactions
		WHERE client_id = ? AND type = 'income'`, clientID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e models.StatementEntry
		if err := rows.Scan(&e.Date, &e.Reference, &e.Credit); err != nil {
			rows.Close()
			return nil, err
		}
		e.Kind = "payment"
		entries = append(entries, e)
	}
	rows.Close()

	// invoices before payments on the same day
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].Kind == "invoice" && entries[j].Kind != "invoice"
	})
	running := 0.0
	for i := range entries {
		running = ledger.Sum(running, entries[i].Debit, -entries[i].Credit)
		entries[i].Running = running
	}
	return entries, nil
}
