package sales

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
)

// NextIDFunc generates a sequential ID with the given prefix and table.
type NextIDFunc func(prefix, table string, digits int) string

// Handler holds dependencies for quote and invoice handlers.
type Handler struct {
	DB        *sql.DB
	Audit     *audit.Recorder
	Log       *zap.Logger
	Estimator *pricing.Estimator
	Invoicing config.InvoicingConfig

	// Function fields set by the server.
	NextID NextIDFunc

	// Printer renders documents; PDF and Mailer are nil when disabled.
	Printer *printing.Renderer
	PDF     printing.PDFRenderer
	Mailer  mailer.Sender
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
