// Package config loads windoorpvc settings from a YAML file, environment
// variables and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/medotmani10/windoorpvc/internal/pricing"
)

const envPrefix = "WINDOORPVC_"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Invoicing InvoicingConfig `yaml:"invoicing"`
	Company   CompanyConfig   `yaml:"company"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	PDF       PDFConfig       `yaml:"pdf"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	UploadDir    string `yaml:"upload_dir"`
	SessionHours int    `yaml:"session_hours"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

// Addr is the listen address for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// SessionTTL is the sliding session lifetime.
func (s ServerConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionHours) * time.Hour
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PricingConfig mirrors pricing.Rates in YAML form.
type PricingConfig struct {
	ProfileRates  map[string]float64 `yaml:"profile_rates"`
	GlassRates    map[string]float64 `yaml:"glass_rates"`
	WasteFactor   float64            `yaml:"waste_factor"`
	Defaults      pricing.Components `yaml:"defaults"`
	MarkupPercent float64            `yaml:"markup_percent"`
	RoundUp       bool               `yaml:"round_up"`
}

// Rates converts the section to the estimator's rate table.
func (p PricingConfig) Rates() pricing.Rates {
	return pricing.Rates{
		Profile:       p.ProfileRates,
		Glass:         p.GlassRates,
		WasteFactor:   p.WasteFactor,
		Defaults:      p.Defaults,
		MarkupPercent: p.MarkupPercent,
		RoundUp:       p.RoundUp,
	}.Clone()
}

type InvoicingConfig struct {
	TaxRate           float64 `yaml:"tax_rate"`
	DueDays           int     `yaml:"due_days"`
	QuoteValidityDays int     `yaml:"quote_validity_days"`
	ProformaPrefix    string  `yaml:"proforma_prefix"`
	FinalPrefix       string  `yaml:"final_prefix"`
	Currency          string  `yaml:"currency"`
}

// CompanyConfig seeds the company settings row on first start.
type CompanyConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Phone   string `yaml:"phone"`
	Email   string `yaml:"email"`
	TaxID   string `yaml:"tax_id"`
}

type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	TLSPolicy string `yaml:"tls_policy"` // mandatory, opportunistic or none
}

// Enabled reports whether outgoing mail is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type PDFConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ChromeBin      string `yaml:"chrome_bin"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout bounds a single render.
func (p PDFConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SchedulerConfig holds cron specs for the background jobs. An empty spec
// disables that job.
type SchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OverdueInvoice string `yaml:"overdue_invoices"`
	ExpireQuotes   string `yaml:"expire_quotes"`
	PurgeSessions  string `yaml:"purge_sessions"`
	AuditRetention string `yaml:"audit_retention"`
}

type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	r := pricing.DefaultRates()
	return &Config{
		Server: ServerConfig{
			Port:         9000,
			UploadDir:    "uploads",
			SessionHours: 24,
		},
		Database: DatabaseConfig{Path: "windoorpvc.db"},
		Pricing: PricingConfig{
			ProfileRates:  r.Profile,
			GlassRates:    r.Glass,
			WasteFactor:   r.WasteFactor,
			Defaults:      r.Defaults,
			MarkupPercent: r.MarkupPercent,
			RoundUp:       r.RoundUp,
		},
		Invoicing: InvoicingConfig{
			TaxRate:           0.19,
			DueDays:           30,
			QuoteValidityDays: 30,
			ProformaPrefix:    "PRO",
			FinalPrefix:       "FAC",
			Currency:          "DZD",
		},
		Company: CompanyConfig{Name: "ورشة الألمنيوم و PVC"},
		SMTP:    SMTPConfig{Port: 587, TLSPolicy: "mandatory"},
		PDF:     PDFConfig{TimeoutSeconds: 30},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			OverdueInvoice: "@hourly",
			ExpireQuotes:   "0 1 * * *",
			PurgeSessions:  "@every 30m",
			AuditRetention: "0 3 * * *",
		},
		Audit: AuditConfig{RetentionDays: 365},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values from WINDOORPVC_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("DB", &c.Database.Path)
	str("UPLOAD_DIR", &c.Server.UploadDir)
	str("COMPANY_NAME", &c.Company.Name)
	str("SMTP_HOST", &c.SMTP.Host)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	str("CHROME_BIN", &c.PDF.ChromeBin)

	var errs []error
	errs = append(errs,
		num("PORT", &c.Server.Port),
		num("SMTP_PORT", &c.SMTP.Port),
		flag("PDF_ENABLED", &c.PDF.Enabled),
		flag("SECURE_COOKIE", &c.Server.SecureCookie),
	)
	return errors.Join(errs...)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.SessionHours <= 0 {
		problems = append(problems, "server.session_hours must be positive")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path is required")
	}
	if err := c.Pricing.Rates().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Invoicing.TaxRate < 0 || c.Invoicing.TaxRate > 1 {
		problems = append(problems, "invoicing.tax_rate must be a fraction between 0 and 1")
	}
	if c.Invoicing.DueDays < 0 || c.Invoicing.QuoteValidityDays < 0 {
		problems = append(problems, "invoicing day counts must not be negative")
	}
	if c.Invoicing.ProformaPrefix == "" || c.Invoicing.FinalPrefix == "" {
		problems = append(problems, "invoicing prefixes are required")
	} else if c.Invoicing.ProformaPrefix == c.Invoicing.FinalPrefix {
		problems = append(problems, "invoicing prefixes must differ")
	}
	switch c.SMTP.TLSPolicy {
	case "mandatory", "opportunistic", "none":
	default:
		problems = append(problems, fmt.Sprintf("smtp.tls_policy %q is not one of mandatory, opportunistic, none", c.SMTP.TLSPolicy))
	}
	if c.SMTP.Host != "" && (c.SMTP.Port < 1 || c.SMTP.Port > 65535) {
		problems = append(problems, "smtp.port out of range")
	}
	if c.Audit.RetentionDays < 0 {
		problems = append(problems, "audit.retention_days must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
