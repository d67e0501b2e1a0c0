package projects

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

const projectColumns = `p.id, p.name, p.client_id, COALESCE(c.name, ''), p.quote_id, p.status, p.start_date, p.end_date,
	p.delivery_date, p.total_price, p.paid_amount, p.budget, p.expenses, p.progress, p.notes, p.created_at, p.updated_at`

func scanProject(s interface{ Scan(...interface{}) error }, p *models.Project) error {
	err := s.Scan(&p.ID, &p.Name, &p.ClientID, &p.ClientName, &p.QuoteID, &p.Status, &p.StartDate, &p.EndDate,
		&p.DeliveryDate, &p.TotalPrice, &p.PaidAmount, &p.Budget, &p.Expenses, &p.Progress, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}
	p.Remaining = ledger.Compute(p.TotalPrice, p.PaidAmount).Due
	return nil
}

// Query lists projects, newest first. status and clientID filter when set;
// limit <= 0 means no limit.
func Query(q database.Querier, status, clientID string, limit int) ([]models.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects p LEFT JOIN clients c ON c.id = p.client_id"
	var conds []string
	var args []interface{}
	if status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, status)
	}
	if clientID != "" {
		conds = append(conds, "p.client_id = ?")
		args = append(args, clientID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC, p.id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListProjects handles GET /api/v1/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := Query(h.DB, r.URL.Query().Get("status"), r.URL.Query().Get("client_id"), 0)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, list)
}

func (h *Handler) load(id string) (models.Project, error) {
	var p models.Project
	err := scanProject(h.DB.QueryRow("SELECT "+projectColumns+
		" FROM projects p LEFT JOIN clients c ON c.id = p.client_id WHERE p.id = ?", id), &p)
	return p, err
}

// GetProject handles GET /api/v1/projects/:id.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "project not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) validate(p *models.Project) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	p.Name = strings.TrimSpace(p.Name)
	validation.RequireField(ve, "name", p.Name)
	validation.ValidateMaxLength(ve, "name", p.Name, 200)
	validation.RequireField(ve, "client_id", p.ClientID)
	validation.ValidateForeignKey(ve, h.DB, "client_id", "clients", p.ClientID, auth.ReferenceTable)
	validation.ValidateForeignKey(ve, h.DB, "quote_id", "quotes", p.QuoteID, auth.ReferenceTable)
	if p.Status == "" {
		p.Status = "pending"
	}
	validation.ValidateEnum(ve, "status", p.Status, validation.ValidProjectStatuses)
	validation.ValidateDate(ve, "start_date", p.StartDate)
	validation.ValidateDate(ve, "end_date", p.EndDate)
	validation.ValidateDate(ve, "delivery_date", p.DeliveryDate)
	validation.ValidateDateOrder(ve, "end_date", p.StartDate, p.EndDate)
	validation.ValidateDateOrder(ve, "delivery_date", p.StartDate, p.DeliveryDate)
	validation.ValidateAmount(ve, "total_price", p.TotalPrice)
	validation.ValidateAmount(ve, "paid_amount", p.PaidAmount)
	validation.ValidateAmount(ve, "budget", p.Budget)
	validation.ValidateAmount(ve, "expenses", p.Expenses)
	if p.Status == "completed" {
		p.Progress = 100
	}
	validation.ValidateIntRange(ve, "progress", p.Progress, 0, 100)
	validation.ValidateMaxLength(ve, "notes", p.Notes, validation.MaxTextLength)
	return ve
}

// CreateProject handles POST /api/v1/projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := h.validate(&p); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	p.ID = h.NextID("PRJ", "projects", 4)
	now := time.Now().UTC().Format(auth.TimeLayout)
	_, err := h.DB.Exec(`INSERT INTO projects (id, name, client_id, quote_id, status, start_date, end_date,
		delivery_date, total_price, paid_amount, budget, expenses, progress, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.ClientID, p.QuoteID, p.Status, p.StartDate, p.EndDate, p.DeliveryDate,
		p.TotalPrice, p.PaidAmount, p.Budget, p.Expenses, p.Progress, p.Notes, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	created, err := h.load(p.ID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionCreate, auth.ModuleProjects, p.ID, "Created project "+p.Name, nil, created)
	response.JSON(w, created)
}

// UpdateProject handles PUT /api/v1/projects/:id. Marking a project
// completed sets its progress to 100.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "project not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var p models.Project
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid JSON", 400)
		return
	}
	if ve := h.validate(&p); ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err = h.DB.Exec(`UPDATE projects SET name = ?, client_id = ?, quote_id = ?, status = ?, start_date = ?,
		end_date = ?, delivery_date = ?, total_price = ?, paid_amount = ?, budget = ?, expenses = ?, progress = ?,
		notes = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.ClientID, p.QuoteID, p.Status, p.StartDate, p.EndDate, p.DeliveryDate, p.TotalPrice,
		p.PaidAmount, p.Budget, p.Expenses, p.Progress, p.Notes, time.Now().UTC().Format(auth.TimeLayout), id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleProjects, id, "Updated project "+after.Name, before, after)
	response.JSON(w, after)
}

// CompleteProject handles POST /api/v1/projects/:id/complete.
func (h *Handler) CompleteProject(w http.ResponseWriter, r *http.Request, id string) {
	before, err := h.load(id)
	if err == sql.ErrNoRows {
		response.Err(w, "project not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	now := time.Now()
	endDate := before.EndDate
	if endDate == "" {
		endDate = now.Format(validation.DateLayout)
	}
	_, err = h.DB.Exec(`UPDATE projects SET status = 'completed', progress = 100, end_date = ?, updated_at = ?
		WHERE id = ?`, endDate, now.UTC().Format(auth.TimeLayout), id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	after, err := h.load(id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, auth.ModuleProjects, id, "Completed project "+after.Name, before, after)
	response.JSON(w, after)
}

// DeleteProject handles DELETE /api/v1/projects/:id.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request, id string) {
	var name string
	if err := h.DB.QueryRow("SELECT name FROM projects WHERE id = ?", id).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			response.Err(w, "project not found", 404)
		} else {
			response.Err(w, err.Error(), 500)
		}
		return
	}
	if _, err := h.DB.Exec("DELETE FROM projects WHERE id = ?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.Record(r, audit.ActionDelete, auth.ModuleProjects, id, "Deleted project "+name)
	response.JSON(w, map[string]string{"status": "deleted", "id": id})
}
