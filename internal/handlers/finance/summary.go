package finance

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medotmani10/windoorpvc/internal/ledger"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/response"
)

// Totals sums income and expense between from and to (inclusive, either
// may be empty). Worker payments count as expenses.
func Totals(ctx context.Context, db *sql.DB, from, to string) (income, expense float64, err error) {
	cond, args := dateRange("date", from, to)
	err = db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0)
		FROM transactions WHERE 1=1`+cond, args...).Scan(&income, &expense)
	if err != nil {
		return 0, 0, fmt.Errorf("transactions: %w", err)
	}
	var salaries float64
	err = db.QueryRowContext(ctx, "SELECT COALESCE(SUM(amount), 0) FROM worker_payments WHERE 1=1"+cond, args...).Scan(&salaries)
	if err != nil {
		return 0, 0, fmt.Errorf("worker payments: %w", err)
	}
	return ledger.Sum(income), ledger.Sum(expense, salaries), nil
}

func dateRange(col, from, to string) (string, []interface{}) {
	var cond string
	var args []interface{}
	if from != "" {
		cond += " AND " + col + " >= ?"
		args = append(args, from)
	}
	if to != "" {
		cond += " AND " + col + " <= ?"
		args = append(args, to)
	}
	return cond, args
}

// monthBounds returns the first and last calendar day of now's month.
func monthBounds(now time.Time) (string, string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}

// Summarize computes the finance overview. Each figure is an independent
// query, run concurrently.
func Summarize(ctx context.Context, db *sql.DB, now time.Time) (models.FinanceSummary, error) {
	var s models.FinanceSummary
	from, to := monthBounds(now)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		s.TotalIncome, s.TotalExpense, err = Totals(ctx, db, "", "")
		return err
	})
	g.Go(func() error {
		var err error
		s.MonthlyIncome, s.MonthlyExpense, err = Totals(ctx, db, from, to)
		return err
	})
	g.Go(func() error {
		var invoiced, received float64
		err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total), 0) FROM invoices
			WHERE type = 'final' AND status != 'cancelled'`).Scan(&invoiced)
		if err != nil {
			return fmt.Errorf("invoiced: %w", err)
		}
		err = db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions
			WHERE type = 'income' AND client_id != ''`).Scan(&received)
		if err != nil {
			return fmt.Errorf("client income: %w", err)
		}
		s.ClientDebt = ledger.NonNegative(ledger.Compute(invoiced, received).Due)
		return nil
	})
	g.Go(func() error {
		err := db.QueryRowContext(ctx, "SELECT COALESCE(SUM(total), 0) FROM purchases WHERE status != 'received'").
			Scan(&s.SupplierDebt)
		if err != nil {
			return fmt.Errorf("open purchases: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.FinanceSummary{}, err
	}
	s.Balance = ledger.Compute(s.TotalIncome, s.TotalExpense).Due
	return s, nil
}

// Monthly returns twelve income/expense points for year, January first.
func Monthly(ctx context.Context, db *sql.DB, year int) ([]models.MonthPoint, error) {
	points := make([]models.MonthPoint, 12)
	for i := range points {
		points[i].Month = i + 1
	}
	prefix := fmt.Sprintf("%04d-", year)

	rows, err := db.QueryContext(ctx, `SELECT CAST(substr(date, 6, 2) AS INTEGER), type, SUM(amount)
		FROM transactions WHERE date LIKE ? GROUP BY 1, 2`, prefix+"%")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var month int
		var kind string
		var amount float64
		if err := rows.Scan(&month, &kind, &amount); err != nil {
			rows.Close()
			return nil, err
		}
		if month < 1 || month > 12 {
			continue
		}
		if kind == "income" {
			points[month-1].Income = ledger.Sum(points[month-1].Income, amount)
		} else {
			points[month-1].Expense = ledger.Sum(points[month-1].Expense, amount)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `SELECT CAST(substr(date, 6, 2) AS INTEGER), SUM(amount)
		FROM worker_payments WHERE date LIKE ? GROUP BY 1`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var month int
		var amount float64
		if err := rows.Scan(&month, &amount); err != nil {
			return nil, err
		}
		if month >= 1 && month <= 12 {
			points[month-1].Expense = ledger.Sum(points[month-1].Expense, amount)
		}
	}
	return points, rows.Err()
}

// GetSummary handles GET /api/v1/finance/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := Summarize(r.Context(), h.DB, time.Now())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, s)
}

// GetMonthly handles GET /api/v1/finance/monthly?year=YYYY.
func (h *Handler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		if _, err := fmt.Sscanf(y, "%d", &year); err != nil || year < 2000 || year > 2100 {
			response.Err(w, "year: must be between 2000 and 2100", 400)
			return
		}
	}
	points, err := Monthly(r.Context(), h.DB, year)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, points)
}
