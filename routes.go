package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/handlers/admin"
	"github.com/medotmani10/windoorpvc/internal/handlers/clients"
	"github.com/medotmani10/windoorpvc/internal/handlers/common"
	"github.com/medotmani10/windoorpvc/internal/handlers/finance"
	"github.com/medotmani10/windoorpvc/internal/handlers/inventory"
	"github.com/medotmani10/windoorpvc/internal/handlers/procurement"
	"github.com/medotmani10/windoorpvc/internal/handlers/projects"
	"github.com/medotmani10/windoorpvc/internal/handlers/reports"
	"github.com/medotmani10/windoorpvc/internal/handlers/sales"
	"github.com/medotmani10/windoorpvc/internal/handlers/transport"
	"github.com/medotmani10/windoorpvc/internal/handlers/workforce"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/metrics"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/server"
	"github.com/medotmani10/windoorpvc/internal/websocket"
)

// api groups every module handler behind the /api/v1/ router.
type api struct {
	app *server.App

	admin       *admin.Handler
	clients     *clients.Handler
	common      *common.Handler
	finance     *finance.Handler
	inventory   *inventory.Handler
	procurement *procurement.Handler
	projects    *projects.Handler
	reports     *reports.Handler
	sales       *sales.Handler
	transport   *transport.Handler
	workforce   *workforce.Handler
}

// nextID wraps database.NextID for handlers that cannot return the error.
// A failed lookup falls back to a time based id, which is still unique.
func nextID(db *sql.DB, log *zap.Logger) func(prefix, table string, digits int) string {
	return func(prefix, table string, digits int) string {
		id, err := database.NextID(db, prefix, table, digits)
		if err != nil {
			log.Error("next id", zap.String("table", table), zap.Error(err))
			return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
		}
		return id
	}
}

// services are the optional outputs. Nil means disabled.
type services struct {
	Printer *printing.Renderer
	PDF     printing.PDFRenderer
	Mailer  mailer.Sender
}

func newAPI(app *server.App, svc services, backupDir string) *api {
	cfg := app.Config
	ids := nextID(app.DB, app.Log)
	return &api{
		app: app,
		admin: &admin.Handler{
			DB:           app.DB,
			Audit:        app.Audit,
			PermCache:    app.PermCache,
			SessionTTL:   cfg.Server.SessionTTL(),
			SecureCookie: cfg.Server.SecureCookie,
			UploadDir:    cfg.Server.UploadDir,
			BackupDir:    backupDir,
			Mailer:       svc.Mailer,
		},
		clients:     &clients.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		common:      &common.Handler{DB: app.DB, Audit: app.Audit},
		finance:     &finance.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		inventory:   &inventory.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		procurement: &procurement.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		projects:    &projects.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		reports:     &reports.Handler{DB: app.DB, Printer: svc.Printer},
		sales: &sales.Handler{
			DB:        app.DB,
			Audit:     app.Audit,
			Log:       app.Log,
			Estimator: app.Estimator,
			Invoicing: cfg.Invoicing,
			NextID:    ids,
			Printer:   svc.Printer,
			PDF:       svc.PDF,
			Mailer:    svc.Mailer,
		},
		transport: &transport.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
		workforce: &workforce.Handler{DB: app.DB, Audit: app.Audit, NextID: ids},
	}
}

// Handler builds the full middleware chain around the mux.
func (a *api) Handler(rl *server.RateLimiter) http.Handler {
	cfg := a.app.Config
	mux := http.NewServeMux()

	scrape := metrics.Handler()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if a.admin.RequireAdmin(w, r) == nil {
			return
		}
		scrape.ServeHTTP(w, r)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if a.admin.CurrentUser(r) == nil {
			response.Err(w, "Unauthorized", 401)
			return
		}
		websocket.HandleWebSocket(a.app.Hub, w, r)
	})
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Server.UploadDir))))
	mux.HandleFunc("/api/v1/", a.route)

	var h http.Handler = mux
	h = server.CSRFMiddleware(a.app.DB)(h)
	h = server.RequireRBAC(a.app.PermCache)(h)
	h = server.RequireAuth(a.app.DB, cfg.Server.SessionTTL(), cfg.Server.SecureCookie)(h)
	h = server.RateLimitMiddleware(rl)(h)
	h = server.GzipMiddleware(h)
	h = server.LoggingMiddleware(a.app.Log)(h)
	h = metrics.InstrumentHandler(h)
	return server.SecurityHeaders(h)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := a.app.DB.PingContext(r.Context()); err != nil {
		status = "degraded"
	}
	response.JSON(w, map[string]interface{}{"status": status, "ws_clients": a.app.Hub.Clients()})
}

func (a *api) route(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	path = strings.TrimSuffix(path, "/")
	parts := strings.Split(path, "/")
	n := len(parts)
	m := r.Method

	switch {
	case path == "health" && m == "GET":
		a.health(w, r)

	// Auth
	case path == "auth/login" && m == "POST":
		a.admin.HandleLogin(w, r)
	case path == "auth/register" && m == "POST":
		a.admin.HandleRegister(w, r)
	case path == "auth/logout" && m == "POST":
		a.admin.HandleLogout(w, r)
	case path == "auth/me" && m == "GET":
		a.admin.HandleMe(w, r)
	case path == "auth/csrf-token" && m == "GET":
		a.admin.HandleCSRFToken(w, r)
	case path == "auth/change-password" && m == "POST":
		a.admin.HandleChangePassword(w, r)

	// Users
	case parts[0] == "users" && n == 1 && m == "GET":
		a.admin.ListUsers(w, r)
	case parts[0] == "users" && n == 1 && m == "POST":
		a.admin.CreateUser(w, r)
	case parts[0] == "users" && n == 2 && m == "PUT":
		a.admin.UpdateUser(w, r, parts[1])
	case parts[0] == "users" && n == 2 && m == "DELETE":
		a.admin.DeleteUser(w, r, parts[1])
	case parts[0] == "users" && n == 3 && parts[2] == "password" && (m == "PUT" || m == "POST"):
		a.admin.ResetPassword(w, r, parts[1])

	// Permissions
	case parts[0] == "permissions" && n == 1 && m == "GET":
		a.admin.HandleListPermissions(w, r)
	case path == "permissions/modules" && m == "GET":
		a.admin.HandleListModules(w, r)
	case path == "permissions/me" && m == "GET":
		a.admin.HandleMyPermissions(w, r)
	case parts[0] == "permissions" && n == 2 && m == "PUT":
		a.admin.HandleSetPermissions(w, r, parts[1])

	// Settings
	case path == "settings" && m == "GET":
		a.admin.GetSettings(w, r)
	case path == "settings" && m == "PUT":
		a.admin.UpdateSettings(w, r)
	case path == "settings/logo" && m == "POST":
		a.admin.UploadLogo(w, r)
	case path == "settings/email/test" && m == "POST":
		a.admin.HandleTestEmail(w, r)

	// Audit and backups
	case path == "audit" && m == "GET":
		a.admin.ListAudit(w, r)
	case parts[0] == "backups" && n == 1 && m == "GET":
		a.admin.HandleListBackups(w, r)
	case parts[0] == "backups" && n == 1 && m == "POST":
		a.admin.HandleCreateBackup(w, r)
	case parts[0] == "backups" && n == 2 && m == "GET":
		a.admin.HandleDownloadBackup(w, r, parts[1])
	case parts[0] == "backups" && n == 2 && m == "DELETE":
		a.admin.HandleDeleteBackup(w, r, parts[1])

	// Search, export, dashboard and reports
	case path == "search" && m == "GET":
		a.common.GlobalSearch(w, r)
	case parts[0] == "export" && n == 2 && m == "GET":
		a.export(w, r, parts[1])
	case path == "dashboard" && m == "GET":
		a.reports.GetDashboard(w, r)
	case parts[0] == "reports" && n == 2 && m == "GET":
		a.report(w, r, parts[1])

	// Clients
	case parts[0] == "clients" && n == 1 && m == "GET":
		a.clients.ListClients(w, r)
	case parts[0] == "clients" && n == 1 && m == "POST":
		a.clients.CreateClient(w, r)
	case parts[0] == "clients" && n == 2 && m == "GET":
		a.clients.GetClient(w, r, parts[1])
	case parts[0] == "clients" && n == 2 && m == "PUT":
		a.clients.UpdateClient(w, r, parts[1])
	case parts[0] == "clients" && n == 2 && m == "DELETE":
		a.clients.DeleteClient(w, r, parts[1])
	case parts[0] == "clients" && n == 3 && parts[2] == "payments" && m == "POST":
		a.clients.RecordPayment(w, r, parts[1])
	case parts[0] == "clients" && n == 3 && parts[2] == "statement" && m == "GET":
		a.clients.Statement(w, r, parts[1])

	// Quotes
	case path == "catalogue" && m == "GET":
		a.sales.Catalogue(w, r)
	case path == "quotes/estimate" && m == "POST":
		a.sales.Estimate(w, r)
	case parts[0] == "quotes" && n == 1 && m == "GET":
		a.sales.ListQuotes(w, r)
	case parts[0] == "quotes" && n == 1 && m == "POST":
		a.sales.CreateQuote(w, r)
	case parts[0] == "quotes" && n == 2 && m == "GET":
		a.sales.GetQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 2 && m == "PUT":
		a.sales.UpdateQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 2 && m == "DELETE":
		a.sales.DeleteQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "confirm" && m == "POST":
		a.sales.ConfirmQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "reject" && m == "POST":
		a.sales.RejectQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "convert-invoice" && m == "POST":
		a.sales.ConvertToInvoice(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "convert-project" && m == "POST":
		a.sales.ConvertToProject(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "print" && m == "GET":
		a.sales.PrintQuote(w, r, parts[1])
	case parts[0] == "quotes" && n == 3 && parts[2] == "pdf" && m == "GET":
		a.sales.QuotePDF(w, r, parts[1])

	// Invoices
	case parts[0] == "invoices" && n == 1 && m == "GET":
		a.sales.ListInvoices(w, r)
	case parts[0] == "invoices" && n == 1 && m == "POST":
		a.sales.CreateInvoice(w, r)
	case parts[0] == "invoices" && n == 2 && m == "GET":
		a.sales.GetInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 2 && m == "PUT":
		a.sales.UpdateInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 2 && m == "DELETE":
		a.sales.DeleteInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "finalize" && m == "POST":
		a.sales.FinalizeInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "pay" && m == "POST":
		a.sales.PayInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "cancel" && m == "POST":
		a.sales.CancelInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "email" && m == "POST":
		a.sales.EmailInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "print" && m == "GET":
		a.sales.PrintInvoice(w, r, parts[1])
	case parts[0] == "invoices" && n == 3 && parts[2] == "pdf" && m == "GET":
		a.sales.InvoicePDF(w, r, parts[1])

	// Projects
	case parts[0] == "projects" && n == 1 && m == "GET":
		a.projects.ListProjects(w, r)
	case parts[0] == "projects" && n == 1 && m == "POST":
		a.projects.CreateProject(w, r)
	case parts[0] == "projects" && n == 2 && m == "GET":
		a.projects.GetProject(w, r, parts[1])
	case parts[0] == "projects" && n == 2 && m == "PUT":
		a.projects.UpdateProject(w, r, parts[1])
	case parts[0] == "projects" && n == 2 && m == "DELETE":
		a.projects.DeleteProject(w, r, parts[1])
	case parts[0] == "projects" && n == 3 && parts[2] == "complete" && m == "POST":
		a.projects.CompleteProject(w, r, parts[1])

	// Materials
	case path == "materials/valuation" && m == "GET":
		a.inventory.GetValuation(w, r)
	case path == "materials/bulk-delete" && m == "POST":
		a.inventory.BulkDelete(w, r)
	case parts[0] == "materials" && n == 1 && m == "GET":
		a.inventory.ListMaterials(w, r)
	case parts[0] == "materials" && n == 1 && m == "POST":
		a.inventory.CreateMaterial(w, r)
	case parts[0] == "materials" && n == 2 && m == "GET":
		a.inventory.GetMaterial(w, r, parts[1])
	case parts[0] == "materials" && n == 2 && m == "PUT":
		a.inventory.UpdateMaterial(w, r, parts[1])
	case parts[0] == "materials" && n == 2 && m == "DELETE":
		a.inventory.DeleteMaterial(w, r, parts[1])
	case parts[0] == "materials" && n == 3 && parts[2] == "adjust" && m == "POST":
		a.inventory.Adjust(w, r, parts[1])
	case parts[0] == "materials" && n == 3 && parts[2] == "movements" && m == "GET":
		a.inventory.History(w, r, parts[1])

	// Suppliers and purchases
	case parts[0] == "suppliers" && n == 1 && m == "GET":
		a.procurement.ListSuppliers(w, r)
	case parts[0] == "suppliers" && n == 1 && m == "POST":
		a.procurement.CreateSupplier(w, r)
	case parts[0] == "suppliers" && n == 2 && m == "GET":
		a.procurement.GetSupplier(w, r, parts[1])
	case parts[0] == "suppliers" && n == 2 && m == "PUT":
		a.procurement.UpdateSupplier(w, r, parts[1])
	case parts[0] == "suppliers" && n == 2 && m == "DELETE":
		a.procurement.DeleteSupplier(w, r, parts[1])
	case parts[0] == "suppliers" && n == 3 && parts[2] == "payments" && m == "POST":
		a.procurement.RecordPayment(w, r, parts[1])
	case parts[0] == "suppliers" && n == 3 && parts[2] == "statement" && m == "GET":
		a.procurement.Statement(w, r, parts[1])
	case parts[0] == "purchases" && n == 1 && m == "GET":
		a.procurement.ListPurchases(w, r)
	case parts[0] == "purchases" && n == 1 && m == "POST":
		a.procurement.CreatePurchase(w, r)
	case parts[0] == "purchases" && n == 2 && m == "GET":
		a.procurement.GetPurchase(w, r, parts[1])
	case parts[0] == "purchases" && n == 2 && m == "PUT":
		a.procurement.UpdatePurchase(w, r, parts[1])
	case parts[0] == "purchases" && n == 2 && m == "DELETE":
		a.procurement.DeletePurchase(w, r, parts[1])
	case parts[0] == "purchases" && n == 3 && parts[2] == "status" && m == "POST":
		a.procurement.SetPurchaseStatus(w, r, parts[1])

	// Workers
	case parts[0] == "workers" && n == 1 && m == "GET":
		a.workforce.ListWorkers(w, r)
	case parts[0] == "workers" && n == 1 && m == "POST":
		a.workforce.CreateWorker(w, r)
	case parts[0] == "workers" && n == 2 && m == "GET":
		a.workforce.GetWorker(w, r, parts[1])
	case parts[0] == "workers" && n == 2 && m == "PUT":
		a.workforce.UpdateWorker(w, r, parts[1])
	case parts[0] == "workers" && n == 2 && m == "DELETE":
		a.workforce.DeleteWorker(w, r, parts[1])
	case parts[0] == "workers" && n == 3 && parts[2] == "attendance" && m == "GET":
		a.workforce.ListAttendance(w, r, parts[1])
	case parts[0] == "workers" && n == 3 && parts[2] == "attendance" && m == "POST":
		a.workforce.ToggleAttendance(w, r, parts[1])
	case parts[0] == "workers" && n == 3 && parts[2] == "payments" && m == "POST":
		a.workforce.RecordPayment(w, r, parts[1])
	case parts[0] == "worker-payments" && n == 1 && m == "GET":
		a.workforce.ListPayments(w, r)
	case parts[0] == "worker-payments" && n == 2 && m == "DELETE":
		a.workforce.DeletePayment(w, r, parts[1])

	// Transport
	case parts[0] == "transporters" && n == 1 && m == "GET":
		a.transport.ListTransporters(w, r)
	case parts[0] == "transporters" && n == 1 && m == "POST":
		a.transport.CreateTransporter(w, r)
	case parts[0] == "transporters" && n == 2 && m == "GET":
		a.transport.GetTransporter(w, r, parts[1])
	case parts[0] == "transporters" && n == 2 && m == "PUT":
		a.transport.UpdateTransporter(w, r, parts[1])
	case parts[0] == "transporters" && n == 2 && m == "DELETE":
		a.transport.DeleteTransporter(w, r, parts[1])
	case parts[0] == "transporters" && n == 3 && parts[2] == "trips" && m == "GET":
		a.transport.ListTrips(w, r, parts[1])
	case parts[0] == "transporters" && n == 3 && parts[2] == "trips" && m == "POST":
		a.transport.AddTrip(w, r, parts[1])
	case parts[0] == "transporters" && n == 3 && parts[2] == "payments" && m == "GET":
		a.transport.ListPayments(w, r, parts[1])
	case parts[0] == "transporters" && n == 3 && parts[2] == "payments" && m == "POST":
		a.transport.RecordPayment(w, r, parts[1])
	case parts[0] == "transport-trips" && n == 2 && m == "DELETE":
		a.transport.DeleteTrip(w, r, parts[1])
	case parts[0] == "transport-payments" && n == 2 && m == "DELETE":
		a.transport.DeletePayment(w, r, parts[1])

	// Finance
	case path == "finance/summary" && m == "GET":
		a.finance.GetSummary(w, r)
	case path == "finance/monthly" && m == "GET":
		a.finance.GetMonthly(w, r)
	case parts[0] == "transactions" && n == 1 && m == "GET":
		a.finance.ListTransactions(w, r)
	case parts[0] == "transactions" && n == 1 && m == "POST":
		a.finance.CreateTransaction(w, r)
	case parts[0] == "transactions" && n == 2 && m == "GET":
		a.finance.GetTransaction(w, r, parts[1])
	case parts[0] == "transactions" && n == 2 && m == "PUT":
		a.finance.UpdateTransaction(w, r, parts[1])
	case parts[0] == "transactions" && n == 2 && m == "DELETE":
		a.finance.DeleteTransaction(w, r, parts[1])

	default:
		response.Err(w, "not found", 404)
	}
}

func (a *api) export(w http.ResponseWriter, r *http.Request, kind string) {
	switch kind {
	case "clients":
		a.common.ExportClients(w, r)
	case "suppliers":
		a.common.ExportSuppliers(w, r)
	case "invoices":
		a.common.ExportInvoices(w, r)
	case "transactions":
		a.common.ExportTransactions(w, r)
	case "materials":
		a.common.ExportMaterials(w, r)
	case "workers":
		a.common.ExportWorkers(w, r)
	default:
		response.Err(w, "unknown export "+kind, 404)
	}
}

func (a *api) report(w http.ResponseWriter, r *http.Request, kind string) {
	switch kind {
	case "projects":
		a.reports.ReportProjects(w, r)
	case "finance":
		a.reports.ReportFinance(w, r)
	case "purchases":
		a.reports.ReportPurchases(w, r)
	case "workers":
		a.reports.ReportWorkers(w, r)
	default:
		response.Err(w, "unknown report "+kind, 404)
	}
}

// newApp wires the shared dependencies around an open, migrated database.
func newApp(db *sql.DB, cfg *config.Config, log *zap.Logger, hub *websocket.Hub) (*server.App, error) {
	pc := auth.NewPermCache()
	if err := auth.InitPermissions(db, pc); err != nil {
		return nil, err
	}
	return &server.App{
		DB:        db,
		Hub:       hub,
		PermCache: pc,
		Log:       log,
		Config:    cfg,
		Estimator: pricing.NewEstimator(cfg.Pricing.Rates()),
		Audit:     audit.NewRecorder(db, hub, log),
	}, nil
}
