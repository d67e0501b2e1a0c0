// Package reports serves the dashboard and the printable reports.
package reports

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medotmani10/windoorpvc/internal/handlers/finance"
	"github.com/medotmani10/windoorpvc/internal/handlers/projects"
	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// Handler holds dependencies for dashboard and report handlers.
type Handler struct {
	DB      *sql.DB
	Printer *printing.Renderer
}

func count(ctx context.Context, db *sql.DB, dst *int, query string) func() error {
	return func() error {
		if err := db.QueryRowContext(ctx, query).Scan(dst); err != nil {
			return fmt.Errorf("%.40s: %w", query, err)
		}
		return nil
	}
}

// Dashboard gathers the home screen figures for now's year.
func Dashboard(ctx context.Context, db *sql.DB, now time.Time) (models.DashboardData, error) {
	var d models.DashboardData
	g, ctx := errgroup.WithContext(ctx)

	g.Go(count(ctx, db, &d.ActiveProjects, "SELECT COUNT(*) FROM projects WHERE status = 'active'"))
	g.Go(count(ctx, db, &d.Workers, "SELECT COUNT(*) FROM workers WHERE is_active = 1"))
	g.Go(count(ctx, db, &d.LowStock, "SELECT COUNT(*) FROM materials WHERE quantity <= min_quantity"))
	g.Go(func() error {
		return db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total), 0) FROM invoices
			WHERE status != 'cancelled'`).Scan(&d.Revenue)
	})
	g.Go(func() error {
		var err error
		_, d.Expenses, err = finance.Totals(ctx, db, "", "")
		return err
	})
	g.Go(func() error {
		var err error
		d.Monthly, err = finance.Monthly(ctx, db, now.Year())
		return err
	})
	g.Go(func() error {
		var err error
		d.RecentProjects, err = projects.Query(db, "", "", 5)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.DashboardData{}, err
	}
	d.NetProfit = ledger.Compute(d.Revenue, d.Expenses).Due
	return d, nil
}

// GetDashboard handles GET /api/v1/dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := Dashboard(r.Context(), h.DB, time.Now())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, d)
}
