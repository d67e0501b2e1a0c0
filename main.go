package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/logging"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/scheduler"
	"github.com/medotmani10/windoorpvc/internal/server"
	"github.com/medotmani10/windoorpvc/internal/websocket"
)

var (
	configPath string
	dbPath     string
	port       int
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "windoorpvc",
	Short: "Aluminium and PVC workshop manager",
	Long: `windoorpvc runs the workshop back office: quotes priced from the rate
table, projects, stock, suppliers, workers, transport, invoices and the
cash book.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema and seed defaults",
	RunE:  runMigrate,
}

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Price one opening with the configured rates",
	Long: `Prints the full breakdown for one opening.

Example:
  windoorpvc estimate --width 120 --height 150 --qty 2 --profile aluminium --glass double`,
	RunE: runEstimate,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user account",
	RunE:  runUserAdd,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVar(&dbPath, "db", "", "SQLite database path (overrides the config)")
	pf.IntVar(&port, "port", 0, "HTTP port (overrides the config)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	ef := estimateCmd.Flags()
	ef.Float64("width", 0, "width in centimetres")
	ef.Float64("height", 0, "height in centimetres")
	ef.Int("qty", 1, "number of openings")
	ef.String("type", "sliding", "window type")
	ef.String("profile", "aluminium", "profile material")
	ef.String("glass", "simple_6mm", "glass type")
	ef.Float64("accessories", 0, "accessories price per unit")
	ef.Float64("fabrication", 0, "fabrication price per unit")
	ef.Float64("transport", 0, "transport price per unit")
	ef.Float64("installation", 0, "installation price per unit")

	uf := userAddCmd.Flags()
	uf.String("username", "", "login name")
	uf.String("password", "", "password")
	uf.String("display-name", "", "name shown in the interface")
	uf.String("email", "", "email address")
	uf.String("role", auth.RoleStaff, "admin, staff or readonly")
	userAddCmd.MarkFlagRequired("username")
	userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, estimateCmd, userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file then applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}

func companySeed(cfg *config.Config) database.Company {
	return database.Company{
		Name:    cfg.Company.Name,
		Address: cfg.Company.Address,
		Phone:   cfg.Company.Phone,
		Email:   cfg.Company.Email,
		TaxID:   cfg.Company.TaxID,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.InitPermissions(db, auth.NewPermCache()); err != nil {
		return err
	}
	if err := database.Seed(ctx, db, companySeed(cfg)); err != nil {
		return err
	}
	logger.Info("database ready", zap.String("path", cfg.Database.Path), zap.Int("tables", len(database.Tables())))
	return nil
}

func runEstimate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	o := pricing.Opening{}
	o.Width, _ = f.GetFloat64("width")
	o.Height, _ = f.GetFloat64("height")
	o.Quantity, _ = f.GetInt("qty")
	o.Type, _ = f.GetString("type")
	o.Profile, _ = f.GetString("profile")
	o.Glass, _ = f.GetString("glass")
	component := func(name string) *float64 {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetFloat64(name)
		return &v
	}
	o.Accessories = component("accessories")
	o.Fabrication = component("fabrication")
	o.Transport = component("transport")
	o.Installation = component("installation")

	b, err := pricing.NewEstimator(cfg.Pricing.Rates()).Estimate(o)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	f := cmd.Flags()
	var u auth.NewUser
	u.Username, _ = f.GetString("username")
	u.Password, _ = f.GetString("password")
	u.DisplayName, _ = f.GetString("display-name")
	u.Email, _ = f.GetString("email")
	u.Role, _ = f.GetString("role")
	id, err := auth.CreateUser(db, u)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d, role %s)\n", u.Username, id, u.Role)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Seed(ctx, db, companySeed(cfg)); err != nil {
		return err
	}

	hub := websocket.NewHub(logger)
	defer hub.Close()
	app, err := newApp(db, cfg, logger, hub)
	if err != nil {
		return err
	}

	printer, err := printing.NewRenderer(cfg.Invoicing.Currency)
	if err != nil {
		return err
	}
	svc := services{Printer: printer}
	if cfg.PDF.Enabled {
		pdf := printing.NewPDF(cfg.PDF.ChromeBin, cfg.PDF.Timeout(), logger)
		defer pdf.Close()
		svc.PDF = pdf
	}
	if cfg.SMTP.Enabled() {
		svc.Mailer = mailer.New(cfg.SMTP, logger)
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, logger, func(c *config.Config) {
			if err := app.Estimator.SetRates(c.Pricing.Rates()); err != nil {
				logger.Warn("pricing reload rejected", zap.Error(err))
				return
			}
			logger.Info("pricing rates reloaded")
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	sched := scheduler.New(logger)
	if cfg.Scheduler.Enabled {
		for _, j := range scheduler.WorkshopJobs(db, cfg.Scheduler, cfg.Audit.RetentionDays, nil) {
			if err := sched.Add(j); err != nil {
				return err
			}
		}
		sched.Start(ctx)
	}
	defer sched.Stop()

	backupDir := filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newAPI(app, svc, backupDir).Handler(server.NewRateLimiter()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("windoorpvc server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
