package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medotmani10/windoorpvc/internal/pricing"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "windoorpvc.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.19, cfg.Invoicing.TaxRate)
	assert.Equal(t, "DZD", cfg.Invoicing.Currency)
	assert.Equal(t, 1200.0, cfg.Pricing.ProfileRates[pricing.Aluminium])
	assert.Equal(t, ":9000", cfg.Server.Addr())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), `
server:
  port: 8080
pricing:
  profile_rates:
    aluminium: 1350
  waste_factor: 1.25
  defaults:
    accessories: 0
invoicing:
  tax_rate: 0.09
`)
	t.Setenv("WINDOORPVC_PORT", "")
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1350.0, cfg.Pricing.ProfileRates[pricing.Aluminium])
	assert.Equal(t, 900.0, cfg.Pricing.ProfileRates[pricing.PVC], "unlisted materials keep their defaults")
	assert.Equal(t, 1.25, cfg.Pricing.WasteFactor)
	assert.Zero(t, cfg.Pricing.Defaults.Accessories)
	assert.Equal(t, 3000.0, cfg.Pricing.Defaults.Fabrication)
	assert.Equal(t, 0.09, cfg.Invoicing.TaxRate)
	assert.Equal(t, "windoorpvc.db", cfg.Database.Path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"tax over one":      "invoicing:\n  tax_rate: 19\n",
		"negative rate":     "pricing:\n  glass_rates:\n    double: -1\n",
		"zero waste factor": "pricing:\n  waste_factor: 0\n",
		"bad port":          "server:\n  port: 70000\n",
		"same prefixes":     "invoicing:\n  proforma_prefix: FAC\n",
		"bad tls policy":    "smtp:\n  tls_policy: sometimes\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WINDOORPVC_DB":           "/var/lib/windoorpvc/data.db",
		"WINDOORPVC_PORT":         "9100",
		"WINDOORPVC_COMPANY_NAME": "Atelier Amine",
		"WINDOORPVC_SMTP_HOST":    "smtp.example.dz",
		"WINDOORPVC_PDF_ENABLED":  "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "/var/lib/windoorpvc/data.db", cfg.Database.Path)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "Atelier Amine", cfg.Company.Name)
	assert.Equal(t, "smtp.example.dz", cfg.SMTP.Host)
	assert.True(t, cfg.PDF.Enabled)

	env["WINDOORPVC_PORT"] = "ninety"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestPricingRatesIsACopy(t *testing.T) {
	cfg := Default()
	r := cfg.Pricing.Rates()
	r.Profile[pricing.PVC] = 1
	assert.Equal(t, 900.0, cfg.Pricing.ProfileRates[pricing.PVC])
}
