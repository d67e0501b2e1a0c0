package sales

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// QuoteItemInput is one opening as entered on the quote form. Nil
// components take the configured defaults.
type QuoteItemInput struct {
	Type              string   `json:"type"`
	ProfileType       string   `json:"profile_type"`
	Color             string   `json:"color"`
	Width             float64  `json:"width"`
	Height            float64  `json:"height"`
	Quantity          int      `json:"quantity"`
	GlassType         string   `json:"glass_type"`
	AccessoryPrice    *float64 `json:"accessory_price"`
	FabricationPrice  *float64 `json:"fabrication_price"`
	TransportPrice    *float64 `json:"transport_price"`
	InstallationPrice *float64 `json:"installation_price"`
	UnitPriceOverride *float64 `json:"unit_price_override"`
	Description       string   `json:"description"`
}

func (in QuoteItemInput) opening() pricing.Opening {
	return pricing.Opening{
		Type:         in.Type,
		Width:        in.Width,
		Height:       in.Height,
		Quantity:     in.Quantity,
		Profile:      in.ProfileType,
		Glass:        in.GlassType,
		Accessories:  in.AccessoryPrice,
		Fabrication:  in.FabricationPrice,
		Transport:    in.TransportPrice,
		Installation: in.InstallationPrice,
	}
}

// QuoteRequest is the body of quote create and update.
type QuoteRequest struct {
	ClientID   string           `json:"client_id"`
	Date       string           `json:"date"`
	ValidUntil string           `json:"valid_until"`
	Discount   float64          `json:"discount"`
	Notes      string           `json:"notes"`
	Items      []QuoteItemInput `json:"items"`
}

// pricedQuote is a validated request with every line priced.
type pricedQuote struct {
	QuoteRequest
	items  []models.QuoteItem
	totals pricing.Totals
}

func (h *Handler) validityDays() int {
	if h.Invoicing.QuoteValidityDays > 0 {
		return h.Invoicing.QuoteValidityDays
	}
	return 30
}

// priceQuote validates req, prices each line with the live rates and
// computes the quote totals.
func (h *Handler) priceQuote(req QuoteRequest) (pricedQuote, *validation.ValidationErrors) {
	ve := &validation.ValidationErrors{}
	out := pricedQuote{QuoteRequest: req}

	validation.RequireField(ve, "client_id", req.ClientID)
	validation.ValidateForeignKey(ve, h.DB, "client_id", "clients", req.ClientID, auth.ReferenceTable)
	if out.Date == "" {
		out.Date = time.Now().Format(validation.DateLayout)
	}
	validation.ValidateDate(ve, "date", out.Date)
	if out.ValidUntil == "" {
		if d, err := time.Parse(validation.DateLayout, out.Date); err == nil {
			out.ValidUntil = d.AddDate(0, 0, h.validityDays()).Format(validation.DateLayout)
		}
	}
	validation.ValidateDate(ve, "valid_until", out.ValidUntil)
	validation.ValidateDateOrder(ve, "valid_until", out.Date, out.ValidUntil)
	validation.ValidateAmount(ve, "discount", req.Discount)
	validation.ValidateMaxLength(ve, "notes", req.Notes, validation.MaxTextLength)
	if len(req.Items) == 0 {
		ve.Add("items", "at least one item is required")
	}

	lineTotals := make([]float64, 0, len(req.Items))
	for i, in := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if !pricing.IsWindowType(in.Type) {
			ve.Add(field+".type", "unknown opening type")
			continue
		}
		if in.Width > validation.MaxDimensionCM || in.Height > validation.MaxDimensionCM {
			ve.Add(field, fmt.Sprintf("dimensions exceed %.0f cm", validation.MaxDimensionCM))
			continue
		}
		b, err := h.Estimator.Estimate(in.opening())
		if err != nil {
			ve.Add(field, strings.TrimPrefix(err.Error(), "pricing: "))
			continue
		}
		metrics.RecordEstimate(in.ProfileType)

		item := models.QuoteItem{
			Type:              in.Type,
			ProfileType:       in.ProfileType,
			Color:             strings.TrimSpace(in.Color),
			Width:             in.Width,
			Height:            in.Height,
			Quantity:          in.Quantity,
			GlassType:         in.GlassType,
			ProfileLength:     b.ProfileLength,
			GlassArea:         b.GlassArea,
			MaterialPrice:     b.MaterialPrice,
			AccessoryPrice:    &b.Accessories,
			FabricationPrice:  &b.Fabrication,
			TransportPrice:    &b.Transport,
			InstallationPrice: &b.Installation,
			UnitPrice:         b.UnitPrice,
			TotalPrice:        b.TotalPrice,
			Description:       in.Description,
		}
		if in.UnitPriceOverride != nil {
			if *in.UnitPriceOverride < 0 {
				ve.Add(field+".unit_price_override", "must be non-negative")
				continue
			}
			item.UnitPriceOverride = in.UnitPriceOverride
			item.UnitPrice = pricing.Round2(*in.UnitPriceOverride)
			item.TotalPrice = pricing.LineTotal(float64(in.Quantity), item.UnitPrice)
		}
		out.items = append(out.items, item)
		lineTotals = append(lineTotals, item.TotalPrice)
	}
	if ve.HasErrors() {
		return out, ve
	}

	totals, err := pricing.QuoteTotals(lineTotals, req.Discount, h.Invoicing.TaxRate)
	if err != nil {
		ve.Add("discount", "must not exceed the subtotal")
		return out, ve
	}
	out.totals = totals
	return out, ve
}

// Estimate handles POST /api/v1/quotes/estimate: prices one opening without
// storing anything.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var o pricing.Opening
	if err := response.DecodeBody(r, &o); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	b, err := h.Estimator.Estimate(o)
	if err != nil {
		response.Err(w, strings.TrimPrefix(err.Error(), "pricing: "), 400)
		return
	}
	metrics.RecordEstimate(o.Profile)
	response.JSON(w, b)
}

// Catalogue handles GET /api/v1/catalogue: the options and rates behind the
// quote form.
func (h *Handler) Catalogue(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, pricing.BuildCatalogue(h.Estimator.Rates()))
}

const quoteColumns = `q.id, q.client_id, COALESCE(c.name, ''), q.date, q.valid_until, q.status,
	q.subtotal, q.discount, q.tax, q.total, q.notes, q.created_by, q.created_at, q.updated_at, q.confirmed_at`

func scanQuote(s interface{ Scan(...interface{}) error }, q *models.Quote) error {
	var confirmedAt sql.NullString
	err := s.Scan(&q.ID, &q.ClientID, &q.ClientName, &q.Date, &q.ValidUntil, &q.Status,
		&q.Subtotal, &q.Discount, &q.Tax, &q.Total, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt, &confirmedAt)
	if err != nil {
		return err
	}
	if confirmedAt.Valid {
		q.ConfirmedAt = &confirmedAt.String
	}
	return nil
}

// ListQuotes handles GET /api/v1/quotes with optional status, client_id and
// search filters.
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + quoteColumns + " FROM quotes q LEFT JOIN clients c ON c.id = q.client_id"
	var conds []string
	var args []interface{}
	if s := r.URL.Query().Get("status"); s != "" {
		conds = append(conds, "q.status = ?")
		args = append(args, s)
	}
	if cid := r.URL.Query().Get("client_id"); cid != "" {
		conds = append(conds, "q.client_id = ?")
		args = append(args, cid)
	}
	if s := r.URL.Query().Get("search"); s != "" {
		conds = append(conds, "(q.id LIKE ? OR c.name LIKE ?)")
		args = append(args, "%"+s+"%", "%"+s+"%")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY q.date DESC, q.id DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	quotes := []models.Quote{}
	for rows.Next() {
		var q models.Quote
		if err := scanQuote(rows, &q); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		q.Items = []models.QuoteItem{}
		quotes = append(quotes, q)
	}
	response.JSON(w, quotes)
}

func (h *Handler) loadQuote(id string) (models.Quote, error) {
	var q models.Quote
	err := scanQuote(h.DB.QueryRow("SELECT "+quoteColumns+
		" FROM quotes q LEFT JOIN clients c ON c.id = q.client_id WHERE q.id = ?", id), &q)
	if err != nil {
		return q, err
	}
	q.Items, err = h.quoteItems(id)
	return q, err
}

func (h *Handler) quoteItems(quoteID string) ([]models.QuoteItem, error) {
	rows, err := h.DB.Query(`SELECT id, quote_id, type, profile_type, color, width, height, quantity, glass_type,
		profile_length, glass_area, material_price, accessory_price, fabrication_price, transport_price,
		installation_price, unit_price_override, unit_price, total_price, description
		FROM quote_items WHERE quote_id = ? ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.QuoteItem{}
	for rows.Next() {
		var it models.QuoteItem
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Type, &it.ProfileType, &it.Color, &it.Width, &it.Height,
			&it.Quantity, &it.GlassType, &it.ProfileLength, &it.GlassArea, &it.MaterialPrice,
			&it.AccessoryPrice, &it.FabricationPrice, &it.TransportPrice, &it.InstallationPrice,
			&it.UnitPriceOverride, &it.UnitPrice, &it.TotalPrice, &it.Description); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetQuote handles GET /api/v1/quotes/:id.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request, id string) {
	q, err := h.loadQuote(id)
	if err == sql.ErrNoRows {
		response.Err(w, "quote not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, q)
}

func insertQuoteItems(tx *sql.Tx, quoteID string, items []models.QuoteItem) error {
	for _, it := range items {
		_, err := tx.Exec(`INSERT INTO quote_items (quote_id, type, profile_type, color, width, height, quantity,
			glass_type, profile_length, glass_area, material_price, accessory_price, fabrication_price,
			transport_price, installation_price, unit_price_override, unit_price, total_price, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			quoteID, it.Type, it.ProfileType, it.Color, it.Width, it.Height, it.Quantity,
			it.GlassType, it.ProfileLength, it.GlassArea, it.MaterialPrice, it.AccessoryPrice, it.FabricationPrice,
			it.TransportPrice, it.InstallationPrice, it.UnitPriceOverride, it.UnitPrice, it.TotalPrice, it.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateQuote handles POST /api/v1/quotes.
func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	pq, ve := h.priceQuote(req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	id := h.NextID("DEV", "quotes", 4)
	_, username := audit.GetUserContext(r, h.DB)
	now := time.Now().UTC().Format(auth.TimeLayout)

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO quotes (id, client_id, date, valid_until, status, subtotal, discount, tax, total,
		notes, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, 'draft', ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, pq.ClientID, pq.Date, pq.ValidUntil, pq.totals.Subtotal, pq.totals.Discount, pq.totals.Tax,
		pq.totals.Total, pq.Notes, username, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := insertQuoteItems(tx, id, pq.items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	q, err := h.loadQuote(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleQuotes, id,
		fmt.Sprintf("Created quote %s for %s (%.2f)", id, q.ClientName, q.Total), nil, q)
	response.JSON(w, q)
}

// UpdateQuote handles PUT /api/v1/quotes/:id. Only drafts can change; every
// line is priced again with the current rates.
func (h *Handler) UpdateQuote(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.loadQuote(id)
	if err == sql.ErrNoRows {
		response.Err(w, "quote not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if before.Status != "draft" {
		response.Err(w, fmt.Sprintf("quote is %s; only drafts can be edited", before.Status), 409)
		return
	}

	var req QuoteRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	pq, ve := h.priceQuote(req)
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

	_, err = tx.Exec(`UPDATE quotes SET client_id = ?, date = ?, valid_until = ?, subtotal = ?, discount = ?,
		tax = ?, total = ?, notes = ?, updated_at = ? WHERE id = ?`,
		pq.ClientID, pq.Date, pq.ValidUntil, pq.totals.Subtotal, pq.totals.Discount, pq.totals.Tax,
		pq.totals.Total, pq.Notes, time.Now().UTC().Format(auth.TimeLayout), id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := tx.Exec("DELETE FROM quote_items WHERE quote_id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := insertQuoteItems(tx, id, pq.items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.loadQuote(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleQuotes, id, "Updated quote "+id, before, after)
	response.JSON(w, after)
}

// DeleteQuote handles DELETE /api/v1/quotes/:id. Confirmed quotes are kept.
func (h *Handler) DeleteQuote(w http.ResponseWriter, r *http.Request, id string) {
	var status string
	if err := h.DB.QueryRow("SELECT status FROM quotes WHERE id = ?", id).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "quote not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	if status == "confirmed" {
		response.Err(w, "confirmed quotes cannot be deleted", 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM quotes WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleQuotes, id, "Deleted quote "+id)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}

// quoteTransitions lists the statuses a quote may move to from each status.
var quoteTransitions = map[string][]string{
	"draft": {"confirmed", "rejected", "expired"},
}

func (h *Handler) transitionQuote(w http.ResponseWriter, r *http.Request, id, to, action string) {
	var from string
	if err := h.DB.QueryRow("SELECT status FROM quotes WHERE id = ?", id).Scan(&from); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "quote not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	if !validation.IsOneOf(to, quoteTransitions[from]) {
		response.Err(w, fmt.Sprintf("cannot move quote from %s to %s", from, to), 409)
		return
	}

	now := time.Now().UTC().Format(auth.TimeLayout)
	var err error
	if to == "confirmed" {
		_, err = h.DB.Exec("UPDATE quotes SET status = ?, confirmed_at = ?, updated_at = ? WHERE id = ?", to, now, now, id)
	} else {
		_, err = h.DB.Exec("UPDATE quotes SET status = ?, updated_at = ? WHERE id = ?", to, now, id)
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, action, auth.ModuleQuotes, id, fmt.Sprintf("Quote %s %s", id, to))
	q, err := h.loadQuote(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, q)
}

// ConfirmQuote handles POST /api/v1/quotes/:id/confirm.
func (h *Handler) ConfirmQuote(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionQuote(w, r, id, "confirmed", audit.ActionConfirm)
}

// RejectQuote handles POST /api/v1/quotes/:id/reject.
func (h *Handler) RejectQuote(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionQuote(w, r, id, "rejected", audit.ActionReject)
}

// loadConfirmedQuote loads id and writes the error response unless the
// quote exists and is confirmed.
func (h *Handler) loadConfirmedQuote(w http.ResponseWriter, id string) (models.Quote, bool) {
	q, err := h.loadQuote(id)
	if err == sql.ErrNoRows {
		response.Err(w, "quote not found", 404)
		return q, false
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return q, false
	}
	if q.Status != "confirmed" {
		response.Err(w, "only confirmed quotes can be converted", 409)
		return q, false
	}
	return q, true
}

// QuoteLineDescription is the invoice wording for a quote line.
func QuoteLineDescription(it models.QuoteItem) string {
	parts := []string{pricing.WindowTypeLabel(it.Type), pricing.ProfileLabel(it.ProfileType), pricing.GlassLabel(it.GlassType)}
	if it.Color != "" {
		parts = append(parts, it.Color)
	}
	desc := fmt.Sprintf("%s (%sx%s سم)", strings.Join(parts, " - "),
		strings.TrimSuffix(fmt.Sprintf("%.1f", it.Width), ".0"),
		strings.TrimSuffix(fmt.Sprintf("%.1f", it.Height), ".0"))
	if it.Description != "" {
		desc += " " + it.Description
	}
	return desc
}

// ConvertToInvoice handles POST /api/v1/quotes/:id/convert-invoice. A
// confirmed quote becomes a draft proforma invoice carrying its lines and
// totals. A quote converts at most once.
func (h *Handler) ConvertToInvoice(w http.ResponseWriter, r *http.Request, id string) {
	q, ok := h.loadConfirmedQuote(w, id)
	if !ok {
		return
	}
	var existing string
	err := h.DB.QueryRow("SELECT id FROM invoices WHERE quote_id = ? AND status != 'cancelled'", id).Scan(&existing)
	if err == nil {
		response.Err(w, fmt.Sprintf("quote already invoiced as %s", existing), 409)
		return
	}
	if err != sql.ErrNoRows {
		response.Err(w, err.Error(), 500)
		return
	}

	items := make([]models.InvoiceItem, len(q.Items))
	for i, it := range q.Items {
		items[i] = models.InvoiceItem{
			Description: QuoteLineDescription(it),
			Unit:        "piece",
			Quantity:    float64(it.Quantity),
			UnitPrice:   it.UnitPrice,
			Total:       it.TotalPrice,
		}
	}
	inv := models.Invoice{
		Type:     "proforma",
		ClientID: q.ClientID,
		QuoteID:  q.ID,
		Discount: q.Discount,
		Amount:   pricing.Round2(q.Subtotal - q.Discount),
		Tax:      q.Tax,
		Total:    q.Total,
		Date:     time.Now().Format(validation.DateLayout),
		Notes:    q.Notes,
		Items:    items,
	}
	inv.DueDate = h.defaultDueDate(inv.Date)

	created, err := h.insertInvoice(inv)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionConvert, auth.ModuleQuotes, id, fmt.Sprintf("Quote %s converted to invoice %s", id, created.InvoiceNumber))
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleInvoices, created.ID, "Created invoice "+created.InvoiceNumber+" from quote "+id, nil, created)
	response.JSON(w, created)
}

// ConvertToProject handles POST /api/v1/quotes/:id/convert-project. The
// project's price is the quote total.
func (h *Handler) ConvertToProject(w http.ResponseWriter, r *http.Request, id string) {
	q, ok := h.loadConfirmedQuote(w, id)
	if !ok {
		return
	}
	var body struct {
		Name         string `json:"name"`
		StartDate    string `json:"start_date"`
		DeliveryDate string `json:"delivery_date"`
	}
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &body); err != nil {
			response.Err(w, "invalid JSON", 400)
			return
		}
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateDate(ve, "start_date", body.StartDate)
	validation.ValidateDate(ve, "delivery_date", body.DeliveryDate)
	validation.ValidateDateOrder(ve, "delivery_date", body.StartDate, body.DeliveryDate)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var existing string
	err := h.DB.QueryRow("SELECT id FROM projects WHERE quote_id = ?", id).Scan(&existing)
	if err == nil {
		response.Err(w, fmt.Sprintf("quote already has project %s", existing), 409)
		return
	}
	if err != sql.ErrNoRows {
		response.Err(w, err.Error(), 500)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "مشروع " + q.ClientName
	}
	projectID := h.NextID("PRJ", "projects", 4)
	now := time.Now().UTC().Format(auth.TimeLayout)
	_, err = h.DB.Exec(`INSERT INTO projects (id, name, client_id, quote_id, status, start_date, delivery_date,
		total_price, notes, created_at, updated_at) VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?)`,
		projectID, name, q.ClientID, q.ID, body.StartDate, body.DeliveryDate, q.Total, q.Notes, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.Audit.Record(r, audit.ActionConvert, auth.ModuleQuotes, id, fmt.Sprintf("Quote %s converted to project %s", id, projectID))
	h.Audit.Record(r, audit.ActionCreate, auth.ModuleProjects, projectID, "Created project "+name+" from quote "+id)
	response.JSON(w, map[string]interface{}{
		"id":          projectID,
		"name":        name,
		"client_id":   q.ClientID,
		"quote_id":    q.ID,
		"status":      "pending",
		"total_price": q.Total,
	})
}

func (h *Handler) currency() string {
	if h.Invoicing.Currency != "" {
		return h.Invoicing.Currency
	}
	return "DZD"
}

// renderQuote builds the devis HTML for id, writing the error response on failure.
func (h *Handler) renderQuote(w http.ResponseWriter, id string, autoPrint bool) (models.Quote, []byte, bool) {
	q, err := h.loadQuote(id)
	if err == sql.ErrNoRows {
		response.Err(w, "quote not found", 404)
		return q, nil, false
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return q, nil, false
	}
	client, err := h.client(q.ClientID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return q, nil, false
	}
	company, err := printing.LoadCompany(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return q, nil, false
	}
	var buf bytes.Buffer
	if err := h.Printer.Quote(&buf, company, q, client, autoPrint); err != nil {
		response.Err(w, err.Error(), 500)
		return q, nil, false
	}
	return q, buf.Bytes(), true
}

func (h *Handler) client(id string) (models.Client, error) {
	var c models.Client
	err := h.DB.QueryRow("SELECT id, name, phone, email, address FROM clients WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address)
	if err != nil {
		return c, err
	}
	c.Balance, err = clients.Balance(h.DB, id)
	return c, err
}

// PrintQuote handles GET /api/v1/quotes/:id/print.
func (h *Handler) PrintQuote(w http.ResponseWriter, r *http.Request, id string) {
	_, body, ok := h.renderQuote(w, id, r.URL.Query().Get("autoprint") != "0")
	if !ok {
		return
	}
	response.HTML(w, body)
}

// QuotePDF handles GET /api/v1/quotes/:id/pdf.
func (h *Handler) QuotePDF(w http.ResponseWriter, r *http.Request, id string) {
	if h.PDF == nil {
		response.Err(w, printing.ErrPDFDisabled.Error(), 503)
		return
	}
	q, body, ok := h.renderQuote(w, id, false)
	if !ok {
		return
	}
	pdf, err := h.PDF.Render(r.Context(), body)
	if err != nil {
		h.log().Error("quote pdf failed", zap.String("quote", q.ID), zap.Error(err))
		response.Err(w, "pdf rendering failed", 502)
		return
	}
	response.PDF(w, q.ID+".pdf", pdf)
}
