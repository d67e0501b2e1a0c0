package admin

import (
	"net/http"
	"strconv"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// ListAudit handles GET /api/v1/audit?module=&user=&record_id=&from=&to=&page=&limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.RequireAdmin(w, r) == nil {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	entries, total, err := audit.List(h.DB, audit.Filter{
		Module:   q.Get("module"),
		Username: q.Get("user"),
		RecordID: q.Get("record_id"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSONMeta(w, entries, total, page, limit)
}
