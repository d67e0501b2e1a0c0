package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// Job names.
const (
	JobOverdueInvoices = "overdue_invoices"
	JobExpireQuotes    = "expire_quotes"
	JobPurgeSessions   = "purge_sessions"
	JobAuditRetention  = "audit_retention"
)

// MarkOverdueInvoices flags pending final invoices whose due date is before today.
func MarkOverdueInvoices(ctx context.Context, db *sql.DB, today string) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE invoices SET status = 'overdue'
		WHERE type = 'final' AND status = 'pending' AND due_date < ?`, today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireQuotes moves draft quotes past their validity date to expired.
func ExpireQuotes(ctx context.Context, db *sql.DB, today string) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE quotes SET status = 'expired', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'draft' AND valid_until < ?`, today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WorkshopJobs builds the maintenance jobs from the scheduler and audit
// configuration. now supplies the clock used for date comparisons.
func WorkshopJobs(db *sql.DB, sc config.SchedulerConfig, retentionDays int, now func() time.Time) []Job {
	if now == nil {
		now = time.Now
	}
	today := func() string { return now().Format(validation.DateLayout) }
	return []Job{
		{Name: JobOverdueInvoices, Spec: sc.OverdueInvoice, Run: func(ctx context.Context) (int64, error) {
			return MarkOverdueInvoices(ctx, db, today())
		}},
		{Name: JobExpireQuotes, Spec: sc.ExpireQuotes, Run: func(ctx context.Context) (int64, error) {
			return ExpireQuotes(ctx, db, today())
		}},
		{Name: JobPurgeSessions, Spec: sc.PurgeSessions, Run: func(context.Context) (int64, error) {
			return auth.PurgeExpired(db)
		}},
		{Name: JobAuditRetention, Spec: sc.AuditRetention, Run: func(context.Context) (int64, error) {
			return audit.CleanupOldAuditLogs(db, retentionDays)
		}},
	}
}
