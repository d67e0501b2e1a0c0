package projects

import (
	"database/sql"

	"github.com/medotmani10/windoorpvc/internal/audit"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for project handlers.
type Handler struct {
	DB     *sql.DB
	Audit  *audit.Recorder
	NextID NextIDFunc
}
