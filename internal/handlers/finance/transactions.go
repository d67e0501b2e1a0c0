// Package finance records the workshop's income and expenses and sums
// them into the cash position.
package finance

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/handlers/workforce"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for finance handlers.
type Handler struct {
	DB     *sql.DB
	Audit  *audit.Recorder
	NextID NextIDFunc
}

// Filter narrows a transaction listing. Empty fields are ignored.
type Filter struct {
	Type       string
	Category   string
	From       string
	To         string
	ClientID   string
	SupplierID string
	Search     string
	// Salaries adds worker payments as read-only salary expenses.
	Salaries bool
}

// FilterFromRequest reads a Filter from query parameters.
func FilterFromRequest(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Type:       q.Get("type"),
		Category:   q.Get("category"),
		From:       q.Get("from"),
		To:         q.Get("to"),
		ClientID:   q.Get("client_id"),
		SupplierID: q.Get("supplier_id"),
		Search:     q.Get("search"),
		Salaries:   q.Get("salaries") != "false",
	}
}

const transactionColumns = `id, description, amount, type, category, date, method, status, client_id,
	supplier_id, transporter_id, invoice_id, created_at`

func scanTransaction(s interface{ Scan(...interface{}) error }, t *models.Transaction) error {
	return s.Scan(&t.ID, &t.Description, &t.Amount, &t.Type, &t.Category, &t.Date, &t.Method, &t.Status,
		&t.ClientID, &t.SupplierID, &t.TransporterID, &t.InvoiceID, &t.CreatedAt)
}

// Query lists transactions newest first. Worker payments join the list
// when the filter allows salary expenses and no party filter is set.
func Query(db *sql.DB, f Filter) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions"
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.Type != "" {
		add("type = ?", f.Type)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.From != "" {
		add("date >= ?", f.From)
	}
	if f.To != "" {
		add("date <= ?", f.To)
	}
	if f.ClientID != "" {
		add("client_id = ?", f.ClientID)
	}
	if f.SupplierID != "" {
		add("supplier_id = ?", f.SupplierID)
	}
	if f.Search != "" {
		add("description LIKE ?", "%"+f.Search+"%")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	list := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.Salaries && f.Type != "income" && (f.Category == "" || f.Category == "salary") &&
		f.ClientID == "" && f.SupplierID == "" && f.Search == "" {
		payments, err := workforce.QueryPayments(db, "", f.From, f.To)
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			list = append(list, salaryTransaction(p))
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		return list[i].CreatedAt > list[j].CreatedAt
	})
	return list, nil
}

func salaryTransaction(p models.WorkerPayment) models.Transaction {
	desc := "أجرة العامل " + p.WorkerName
	if p.Notes != "" {
		desc += " - " + p.Notes
	}
	return models.Transaction{
		ID:          "WP-" + strconv.Itoa(p.ID),
		Description: desc,
		Amount:      p.Amount,
		Type:        "expense",
		Category:    "salary",
		Date:        p.Date,
		Method:      "cash",
		Status:      "completed",
		ReadOnly:    true,
		CreatedAt:   p.CreatedAt,
	}
}

// ListTransactions handles GET /api/v1/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := Query(h.DB, FilterFromRequest(r))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, list)
}

func (h *Handler) load(id string) (models.Transaction, error) {
	var t models.Transaction
	err := scanTransaction(h.DB.QueryRow("SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id), &t)
	return t, err
}

// GetTransaction handles GET /api/v1/transactions/:id.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "transaction not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, t)
}

func (h *Handler) validate(t *models.Transaction) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	t.Description = strings.TrimSpace(t.Description)
	validation.ValidateMaxLength(ve, "description", t.Description, validation.MaxStringLength)
	if t.Amount <= 0 {
		ve.Add("amount", "must be positive")
	}
	validation.ValidateAmount(ve, "amount", t.Amount)
	t.Amount = pricing.Round2(t.Amount)
	validation.ValidateEnum(ve, "type", t.Type, validation.ValidTransactionTypes)
	if t.Category == "" {
		t.Category = "other"
	}
	switch t.Type {
	case "income":
		validation.ValidateEnum(ve, "category", t.Category, validation.ValidIncomeCategories)
	case "expense":
		validation.ValidateEnum(ve, "category", t.Category, validation.ValidExpenseCategories)
	}
	if t.Date == "" {
		t.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", t.Date)
	if t.Method == "" {
		t.Method = "cash"
	}
	validation.ValidateEnum(ve, "method", t.Method, validation.ValidPaymentMethods)
	if t.Status == "" {
		t.Status = "completed"
	}
	validation.ValidateEnum(ve, "status", t.Status, validation.ValidTransactionStatuses)
	validation.ValidateForeignKey(ve, h.DB, "client_id", "clients", t.ClientID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "supplier_id", "suppliers", t.SupplierID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "transporter_id", "transporters", t.TransporterID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "invoice_id", "invoices", t.InvoiceID, auth.ReferenceTable)
	return ve
}

// CreateTransaction handles POST /api/v1/transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t models.Transaction
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := h.validate(&t); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	t.ID = h.NextID("TRX", "transactions", 4)
	_, err := h.DB.Exec(`INSERT INTO transactions (id, description, amount, type, category, date, method, status,
		client_id, supplier_id, transporter_id, invoice_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount, t.Type, t.Category, t.Date, t.Method, t.Status,
		t.ClientID, t.SupplierID, t.TransporterID, t.InvoiceID, time.Now().UTC().Format(auth.TimeLayout))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	created, err := h.load(t.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleFinance, t.ID,
		fmt.Sprintf("Created %s %s of %.2f", t.Type, t.ID, t.Amount), nil, created)
	response.JSON(w, created)
}

// linkedPayment reports the transport payment a transaction was booked
// for, if any. Those rows are edited through transport.
func (h *Handler) linkedPayment(id string) (bool, error) {
	var n int
	err := h.DB.QueryRow("SELECT COUNT(*) FROM transport_payments WHERE transaction_id = ?", id).Scan(&n)
	return n > 0, err
}

// UpdateTransaction handles PUT /api/v1/transactions/:id.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "transaction not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	linked, err := h.linkedPayment(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if linked {
		response.Err(w, "transaction belongs to a transport payment", 409)
		return
	}

	var t models.Transaction
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := h.validate(&t); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	_, err = h.DB.Exec(`UPDATE transactions SET description = ?, amount = ?, type = ?, category = ?, date = ?,
		method = ?, status = ?, client_id = ?, supplier_id = ?, transporter_id = ?, invoice_id = ? WHERE id = ?`,
		t.Description, t.Amount, t.Type, t.Category, t.Date, t.Method, t.Status,
		t.ClientID, t.SupplierID, t.TransporterID, t.InvoiceID, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleFinance, id, "Updated transaction "+id, before, after)
	response.JSON(w, after)
}

// DeleteTransaction handles DELETE /api/v1/transactions/:id.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "transaction not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	linked, err := h.linkedPayment(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if linked {
		response.Err(w, "transaction belongs to a transport payment", 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM transactions WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleFinance, id, fmt.Sprintf("Deleted %s %s of %.2f", t.Type, id, t.Amount))
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}
