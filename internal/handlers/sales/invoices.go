package sales

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// InvoiceItemInput is one invoice line as entered.
type InvoiceItemInput struct {
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// InvoiceRequest is the body of invoice create and update.
type InvoiceRequest struct {
	Type     string             `json:"type"`
	ClientID string             `json:"client_id"`
	QuoteID  string             `json:"quote_id"`
	Date     string             `json:"date"`
	DueDate  string             `json:"due_date"`
	Notes    string             `json:"notes"`
	Discount *float64           `json:"discount"`
	Items    []InvoiceItemInput `json:"items"`
}

func (h *Handler) prefix(kind string) string {
	if kind == "final" {
		if h.Invoicing.FinalPrefix != "" {
			return h.Invoicing.FinalPrefix
		}
		return "FAC"
	}
	if h.Invoicing.ProformaPrefix != "" {
		return h.Invoicing.ProformaPrefix
	}
	return "PRO"
}

func (h *Handler) defaultDueDate(date string) string {
	days := h.Invoicing.DueDays
	if days <= 0 {
		days = 30
	}
	d, err := time.Parse(validation.DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, days).Format(validation.DateLayout)
}

// buildInvoice validates req and computes line totals, amount, tax and total.
// A nil discount means none.
func (h *Handler) buildInvoice(req InvoiceRequest) (models.Invoice, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	inv := models.Invoice{
		Type:     req.Type,
		ClientID: req.ClientID,
		QuoteID:  req.QuoteID,
		Date:     req.Date,
		DueDate:  req.DueDate,
		Notes:    req.Notes,
	}
	if inv.Type == "" {
		inv.Type = "proforma"
	}
	validation.ValidateEnum(ve, "type", inv.Type, validation.ValidInvoiceTypes)
	validation.RequireField(ve, "client_id", inv.ClientID)
	validation.ValidateForeignKey(ve, h.DB, "client_id", "clients", inv.ClientID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "quote_id", "quotes", inv.QuoteID, auth.ReferenceTable)
	if inv.Date == "" {
		inv.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", inv.Date)
	if inv.DueDate == "" {
		inv.DueDate = h.defaultDueDate(inv.Date)
	}
	validation.ValidateDate(ve, "due_date", inv.DueDate)
	validation.ValidateDateOrder(ve, "due_date", inv.Date, inv.DueDate)
	validation.ValidateMaxLength(ve, "notes", inv.Notes, validation.MaxTextLength)
	var discount float64
	if req.Discount != nil {
		discount = *req.Discount
		validation.ValidateAmount(ve, "discount", discount)
	}
	if len(req.Items) == 0 {
		ve.Add("items", "at least one item is required")
	}

	lineTotals := make([]float64, 0, len(req.Items))
	for i, in := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			ve.Add(field+".description", "is required")
		}
		if in.Quantity <= 0 {
			ve.Add(field+".quantity", "must be a positive number")
		}
		validation.ValidateMaxQuantity(ve, field+".quantity", in.Quantity)
		validation.ValidateAmount(ve, field+".unit_price", in.UnitPrice)
		unit := in.Unit
		if unit == "" {
			unit = "piece"
		}
		validation.ValidateEnum(ve, field+".unit", unit, validation.ValidMaterialUnits)
		it := models.InvoiceItem{
			Description: desc,
			Unit:        unit,
			Quantity:    in.Quantity,
			UnitPrice:   pricing.Round2(in.UnitPrice),
			Total:       pricing.LineTotal(in.Quantity, in.UnitPrice),
		}
		inv.Items = append(inv.Items, it)
		lineTotals = append(lineTotals, it.Total)
	}
	if ve.HasErrors() {
		return inv, ve
	}

	totals, err := pricing.QuoteTotals(lineTotals, discount, h.Invoicing.TaxRate)
	if err != nil {
		ve.Add("discount", "must not exceed the subtotal")
		return inv, ve
	}
	inv.Discount, inv.Amount, inv.Tax, inv.Total = totals.Discount, totals.Taxable, totals.Tax, totals.Total
	return inv, ve
}

// insertInvoice stores inv with a new id and number. Proforma invoices
// start as drafts, final invoices as pending.
func (h *Handler) insertInvoice(inv models.Invoice) (models.Invoice, error) {
	number, err := database.NextInvoiceNumber(h.DB, h.prefix(inv.Type))
	if err != nil {
		return inv, err
	}
	inv.ID = h.NextID("INV", "invoices", 4)
	inv.InvoiceNumber = number
	inv.Status = "draft"
	var finalizedAt interface{}
	if inv.Type == "final" {
		inv.Status = "pending"
		finalizedAt = time.Now().UTC().Format(auth.TimeLayout)
	}

	tx, err := h.DB.Begin()
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO invoices (id, invoice_number, type, client_id, quote_id, discount, amount, tax, total,
		date, due_date, status, notes, finalized_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InvoiceNumber, inv.Type, inv.ClientID, inv.QuoteID, inv.Discount, inv.Amount, inv.Tax, inv.Total,
		inv.Date, inv.DueDate, inv.Status, inv.Notes, finalizedAt)
	if err != nil {
		return inv, err
	}
	if err := insertInvoiceItems(tx, inv.ID, inv.Items); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	metrics.RecordInvoice(inv.Type)
	return h.loadInvoice(inv.ID)
}

func insertInvoiceItems(tx *sql.Tx, invoiceID string, items []models.InvoiceItem) error {
	for _, it := range items {
		_, err := tx.Exec(`INSERT INTO invoice_items (invoice_id, description, unit, quantity, unit_price, total)
			VALUES (?, ?, ?, ?, ?, ?)`, invoiceID, it.Description, it.Unit, it.Quantity, it.UnitPrice, it.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

const invoiceColumns = `i.id, i.invoice_number, i.type, i.client_id, COALESCE(c.name, ''), i.quote_id, i.discount, i.amount,
	i.tax, i.total, i.date, i.due_date, i.status, i.notes, i.created_at, i.paid_at, i.finalized_at`

func scanInvoice(s interface{ Scan(...interface{}) error }, inv *models.Invoice) error {
	var paidAt, finalizedAt sql.NullString
	err := s.Scan(&inv.ID, &inv.InvoiceNumber, &inv.Type, &inv.ClientID, &inv.ClientName, &inv.QuoteID,
		&inv.Discount, &inv.Amount, &inv.Tax, &inv.Total, &inv.Date, &inv.DueDate, &inv.Status, &inv.Notes, &inv.CreatedAt,
		&paidAt, &finalizedAt)
	if err != nil {
		return err
	}
	inv.PaidAt = database.StrPtr(paidAt)
	inv.FinalizedAt = database.StrPtr(finalizedAt)
	return nil
}

// QueryInvoices lists invoices matching the filters, newest first. Items
// are not loaded.
func QueryInvoices(db *sql.DB, status, kind, clientID, from, to string) ([]models.Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices i LEFT JOIN clients c ON c.id = i.client_id"
	var conds []string
	var args []interface{}
	add := func(cond, v string) {
		if v != "" {
			conds = append(conds, cond)
			args = append(args, v)
		}
	}
	add("i.status = ?", status)
	add("i.type = ?", kind)
	add("i.client_id = ?", clientID)
	add("i.date >= ?", from)
	add("i.date <= ?", to)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY i.date DESC, i.id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		var inv models.Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, err
		}
		inv.Items = []models.InvoiceItem{}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListInvoices handles GET /api/v1/invoices.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invoices, err := QueryInvoices(h.DB, q.Get("status"), q.Get("type"), q.Get("client_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, invoices)
}

func (h *Handler) loadInvoice(id string) (models.Invoice, error) {
	var inv models.Invoice
	err := scanInvoice(h.DB.QueryRow("SELECT "+invoiceColumns+
		" FROM invoices i LEFT JOIN clients c ON c.id = i.client_id WHERE i.id = ?", id), &inv)
	if err != nil {
		return inv, err
	}
	inv.Items, err = h.invoiceItems(id)
	return inv, err
}

func (h *Handler) invoiceItems(invoiceID string) ([]models.InvoiceItem, error) {
	rows, err := h.DB.Query(`SELECT id, invoice_id, description, unit, quantity, unit_price, total
		FROM invoice_items WHERE invoice_id = ? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.InvoiceItem{}
	for rows.Next() {
		var it models.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Unit, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// getInvoice loads id, writing 404/500 on failure.
func (h *Handler) getInvoice(w http.ResponseWriter, id string) (models.Invoice, bool) {
	inv, err := h.loadInvoice(id)
	if err == sql.ErrNoRows {
		response.Err(w, "invoice not found", 404)
		return inv, false
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return inv, false
	}
	return inv, true
}

// GetInvoice handles GET /api/v1/invoices/:id.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	response.JSON(w, inv)
}

// CreateInvoice handles POST /api/v1/invoices.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	inv, ve := h.buildInvoice(req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	created, err := h.insertInvoice(inv)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleInvoices, created.ID,
		fmt.Sprintf("Created %s invoice %s (%.2f)", created.Type, created.InvoiceNumber, created.Total), nil, created)
	response.JSON(w, created)
}

// UpdateInvoice handles PUT /api/v1/invoices/:id. Only draft proforma
// invoices can be edited; the type and number never change here. An
// omitted discount keeps the stored one.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request, id string) {
	before, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	if before.Type != "proforma" || before.Status != "draft" {
		response.Err(w, "only draft proforma invoices can be edited", 409)
		return
	}

	var req InvoiceRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	req.Type = before.Type
	if req.Discount == nil {
		req.Discount = &before.Discount
	}
	inv, ve := h.buildInvoice(req)
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

	_, err = tx.Exec(`UPDATE invoices SET client_id = ?, quote_id = ?, discount = ?, amount = ?, tax = ?, total = ?,
		date = ?, due_date = ?, notes = ? WHERE id = ?`,
		inv.ClientID, inv.QuoteID, inv.Discount, inv.Amount, inv.Tax, inv.Total, inv.Date, inv.DueDate, inv.Notes, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := tx.Exec("DELETE FROM invoice_items WHERE invoice_id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := insertInvoiceItems(tx, id, inv.Items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleInvoices, id, "Updated invoice "+after.InvoiceNumber, before, after)
	response.JSON(w, after)
}

// DeleteInvoice handles DELETE /api/v1/invoices/:id. Final invoices are
// cancelled, never deleted.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	if inv.Type == "final" {
		response.Err(w, "final invoices cannot be deleted; cancel them instead", 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM invoices WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleInvoices, id, "Deleted invoice "+inv.InvoiceNumber)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}

// FinalizeInvoice handles POST /api/v1/invoices/:id/finalize: a proforma
// invoice becomes final under a new FAC number and starts pending.
func (h *Handler) FinalizeInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	if inv.Type != "proforma" || inv.Status == "cancelled" {
		response.Err(w, fmt.Sprintf("invoice %s cannot be finalized", inv.InvoiceNumber), 409)
		return
	}
	number, err := database.NextInvoiceNumber(h.DB, h.prefix("final"))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	now := time.Now().UTC().Format(auth.TimeLayout)
	_, err = h.DB.Exec(`UPDATE invoices SET type = 'final', status = 'pending', invoice_number = ?, finalized_at = ?
		WHERE id = ?`, number, now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	metrics.RecordInvoice("final")

	after, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	h.Audit.RecordDiff(r, audit.ActionFinalize, auth.ModuleInvoices, id,
		fmt.Sprintf("Finalized %s as %s", inv.InvoiceNumber, number), inv, after)
	response.JSON(w, after)
}

// InvoicePaid returns the income already recorded against invoiceID.
func InvoicePaid(q database.Querier, invoiceID string) (float64, error) {
	var paid float64
	err := q.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE invoice_id = ? AND type = 'income'`, invoiceID).Scan(&paid)
	return paid, err
}

// PayInvoice handles POST /api/v1/invoices/:id/pay. The invoice is marked
// paid and the part not yet covered by linked payments is recorded as
// client income.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	if inv.Type != "final" {
		response.Err(w, "proforma invoices must be finalized before payment", 409)
		return
	}
	if inv.Status != "pending" && inv.Status != "overdue" {
		response.Err(w, fmt.Sprintf("invoice is %s", inv.Status), 409)
		return
	}

	var body struct {
		Date   string `json:"date"`
		Method string `json:"method"`
	}
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &body); err != nil {
			response.Err(w, "invalid JSON", 400)
			return
		}
	}
	ve := &validation.ValidationErrors{}
	if body.Date == "" {
		body.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", body.Date)
	if body.Method == "" {
		body.Method = "cash"
	}
	validation.ValidateEnum(ve, "method", body.Method, validation.ValidPaymentMethods)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	paid, err := InvoicePaid(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	remaining := pricing.Round2(inv.Total - paid)

	var txID string
	if remaining > 0 {
		txID = h.NextID("TRX", "transactions", 4)
	}
	now := time.Now().UTC().Format(auth.TimeLayout)

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE invoices SET status = 'paid', paid_at = ? WHERE id = ?", now, id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if txID != "" {
		_, err = tx.Exec(`INSERT INTO transactions (id, description, amount, type, category, date, method, status,
			client_id, invoice_id) VALUES (?, ?, ?, 'income', 'client_payment', ?, ?, 'completed', ?, ?)`,
			txID, "تسديد الفاتورة "+inv.InvoiceNumber, remaining, body.Date, body.Method, inv.ClientID, id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	metrics.RecordPayment("client", remaining)

	h.Audit.Record(r, audit.ActionPay, auth.ModuleInvoices, id,
		fmt.Sprintf("Invoice %s paid (%.2f recorded)", inv.InvoiceNumber, remaining))
	after, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	response.JSON(w, map[string]interface{}{"invoice": after, "transaction_id": txID, "amount": remaining})
}

// CancelInvoice handles POST /api/v1/invoices/:id/cancel.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return
	}
	if inv.Status == "paid" || inv.Status == "cancelled" {
		response.Err(w, fmt.Sprintf("invoice is already %s", inv.Status), 409)
		return
	}
	if _, err := h.DB.Exec("UPDATE invoices SET status = 'cancelled' WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionCancel, auth.ModuleInvoices, id, "Cancelled invoice "+inv.InvoiceNumber)
	inv.Status = "cancelled"
	response.JSON(w, inv)
}

// renderInvoice builds the invoice HTML, writing the error response on failure.
func (h *Handler) renderInvoice(w http.ResponseWriter, id string, autoPrint bool) (models.Invoice, models.Client, []byte, bool) {
	inv, ok := h.getInvoice(w, id)
	if !ok {
		return inv, models.Client{}, nil, false
	}
	client, err := h.client(inv.ClientID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return inv, client, nil, false
	}
	company, err := printing.LoadCompany(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return inv, client, nil, false
	}
	var buf bytes.Buffer
	if err := h.Printer.Invoice(&buf, company, inv, client, autoPrint); err != nil {
		response.Err(w, err.Error(), 500)
		return inv, client, nil, false
	}
	return inv, client, buf.Bytes(), true
}

// PrintInvoice handles GET /api/v1/invoices/:id/print.
func (h *Handler) PrintInvoice(w http.ResponseWriter, r *http.Request, id string) {
	_, _, body, ok := h.renderInvoice(w, id, r.URL.Query().Get("autoprint") != "0")
	if !ok {
		return
	}
	response.HTML(w, body)
}

// InvoicePDF handles GET /api/v1/invoices/:id/pdf.
func (h *Handler) InvoicePDF(w http.ResponseWriter, r *http.Request, id string) {
	if h.PDF == nil {
		response.Err(w, printing.ErrPDFDisabled.Error(), 503)
		return
	}
	inv, _, body, ok := h.renderInvoice(w, id, false)
	if !ok {
		return
	}
	pdf, err := h.PDF.Render(r.Context(), body)
	if err != nil {
		h.log().Error("invoice pdf failed", zap.String("invoice", inv.ID), zap.Error(err))
		response.Err(w, "pdf rendering failed", 502)
		return
	}
	response.PDF(w, inv.InvoiceNumber+".pdf", pdf)
}

// EmailInvoice handles POST /api/v1/invoices/:id/email. The document goes in
// the body and, when PDF rendering is enabled, as an attachment. The
// recipient defaults to the client's email.
func (h *Handler) EmailInvoice(w http.ResponseWriter, r *http.Request, id string) {
	if h.Mailer == nil {
		response.Err(w, mailer.ErrDisabled.Error(), 503)
		return
	}
	var body struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &body); err != nil {
			response.Err(w, "invalid JSON", 400)
			return
		}
	}

	inv, client, doc, ok := h.renderInvoice(w, id, false)
	if !ok {
		return
	}
	to := strings.TrimSpace(body.To)
	if to == "" {
		to = client.Email
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "to", to)
	validation.ValidateEmail(ve, "to", to)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	msg := mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("%s %s", printing.InvoiceTitle(inv.Type), inv.InvoiceNumber),
		Text:    invoiceMailText(inv, body.Message, h.currency()),
		HTML:    string(doc),
	}
	if h.PDF != nil {
		pdf, err := h.PDF.Render(r.Context(), doc)
		if err != nil {
			h.log().Warn("invoice pdf for mail failed, sending html only", zap.String("invoice", inv.ID), zap.Error(err))
		} else {
			msg.Attachments = []mailer.Attachment{{Name: inv.InvoiceNumber + ".pdf", Data: pdf}}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.log().Error("invoice mail failed", zap.String("invoice", inv.ID), zap.Error(err))
		response.Err(w, "sending email failed", 502)
		return
	}
	h.Audit.Record(r, audit.ActionEmail, auth.ModuleInvoices, id, fmt.Sprintf("Emailed %s to %s", inv.InvoiceNumber, to))
	response.JSON(w, map[string]string{"status": "sent", "to": to})
}

func invoiceMailText(inv models.Invoice, note, currency string) string {
	var b strings.Builder
	if note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s\nالتاريخ: %s\nتاريخ الاستحقاق: %s\nالمبلغ الإجمالي: %s %s\n",
		inv.InvoiceNumber, inv.Date, inv.DueDate, printing.Money(inv.Total), currency)
	return b.String()
}
