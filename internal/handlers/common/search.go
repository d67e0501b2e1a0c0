package common

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/medotmani10/windoorpvc/internal/response"
)

// SearchHit is one match in the global search.
type SearchHit struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status string `json:"status,omitempty"`
}

type searchSource struct {
	key   string
	query string
	args  int
}

// Each query selects id, title, detail, status and takes the pattern args
// times followed by a limit.
var searchSources = []searchSource{
	{"clients", `SELECT id, name, phone, category FROM clients
		WHERE id LIKE ? OR name LIKE ? OR phone LIKE ? ORDER BY name LIMIT ?`, 3},
	{"projects", `SELECT p.id, p.name, COALESCE(c.name, ''), p.status FROM projects p LEFT JOIN clients c ON c.id = p.client_id
		WHERE p.id LIKE ? OR p.name LIKE ? OR c.name LIKE ? ORDER BY p.created_at DESC LIMIT ?`, 3},
	{"quotes", `SELECT q.id, COALESCE(c.name, ''), q.date, q.status FROM quotes q LEFT JOIN clients c ON c.id = q.client_id
		WHERE q.id LIKE ? OR c.name LIKE ? ORDER BY q.date DESC LIMIT ?`, 2},
	{"invoices", `SELECT i.id, i.invoice_number, COALESCE(c.name, ''), i.status FROM invoices i LEFT JOIN clients c ON c.id = i.client_id
		WHERE i.invoice_number LIKE ? OR c.name LIKE ? ORDER BY i.date DESC LIMIT ?`, 2},
	{"materials", `SELECT id, name, category, CASE WHEN quantity <= min_quantity THEN 'low' ELSE '' END FROM materials
		WHERE id LIKE ? OR name LIKE ? OR category LIKE ? ORDER BY name LIMIT ?`, 3},
	{"suppliers", `SELECT id, name, phone, material_type FROM suppliers
		WHERE name LIKE ? OR phone LIKE ? OR material_type LIKE ? ORDER BY name LIMIT ?`, 3},
	{"workers", `SELECT id, name, trade, CASE WHEN is_active = 1 THEN 'active' ELSE 'inactive' END FROM workers
		WHERE name LIKE ? OR trade LIKE ? OR phone LIKE ? ORDER BY name LIMIT ?`, 3},
	{"transporters", `SELECT id, driver_name, vehicle_type, status FROM transporters
		WHERE driver_name LIKE ? OR vehicle_type LIKE ? OR phone LIKE ? ORDER BY driver_name LIMIT ?`, 3},
}

// Search runs q against every searchable table, at most limit hits each.
func (h *Handler) Search(q string, limit int) (map[string][]SearchHit, int, error) {
	results := make(map[string][]SearchHit, len(searchSources))
	total := 0
	pattern := "%" + q + "%"
	for _, src := range searchSources {
		args := make([]interface{}, 0, src.args+1)
		for i := 0; i < src.args; i++ {
			args = append(args, pattern)
		}
		args = append(args, limit)

		rows, err := h.DB.Query(src.query, args...)
		if err != nil {
			return nil, 0, err
		}
		hits := []SearchHit{}
		for rows.Next() {
			var hit SearchHit
			if err := rows.Scan(&hit.ID, &hit.Title, &hit.Detail, &hit.Status); err != nil {
				rows.Close()
				return nil, 0, err
			}
			hits = append(hits, hit)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, 0, err
		}
		results[src.key] = hits
		total += len(hits)
	}
	return results, total, nil
}

// GlobalSearch handles GET /api/v1/search?q=&limit=.
func (h *Handler) GlobalSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	if q == "" {
		empty := make(map[string][]SearchHit, len(searchSources))
		for _, src := range searchSources {
			empty[src.key] = []SearchHit{}
		}
		response.JSONMeta(w, empty, 0, 1, limit)
		return
	}

	results, total, err := h.Search(q, limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONMeta(w, results, total, 1, limit)
}
