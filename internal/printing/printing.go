// Package printing renders quotes, invoices and reports as printable
// right-to-left HTML documents, and optionally converts them to PDF.
package printing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/pricing"
)

//go:embed templates/*.html
var templateFS embed.FS

// Company is the letterhead printed on every document.
type Company struct {
	Name    string
	Address string
	Phone   string
	Email   string
	TaxID   string
	LogoURL string
	Footer  string
}

// CompanyFromSettings maps the stored settings row to a letterhead.
func CompanyFromSettings(s models.CompanySettings) Company {
	return Company{
		Name:    s.CompanyName,
		Address: s.Address,
		Phone:   s.Phone,
		Email:   s.Email,
		TaxID:   s.TaxID,
		LogoURL: s.LogoURL,
		Footer:  s.FooterText,
	}
}

// Stat is a labelled figure in a report header.
type Stat struct {
	Label string
	Value string
}

// Report is a tabular document with optional headline figures.
type Report struct {
	Title   string
	Period  string
	Stats   []Stat
	Columns []string
	Rows    [][]string
}

var quoteStatusLabels = map[string]string{
	"draft":     "مسودة",
	"confirmed": "مؤكد",
	"rejected":  "مرفوض",
	"expired":   "منتهي الصلاحية",
}

var invoiceStatusLabels = map[string]string{
	"draft":     "مسودة",
	"pending":   "في الانتظار",
	"paid":      "مدفوعة",
	"overdue":   "متأخرة",
	"cancelled": "ملغاة",
}

// Renderer executes the embedded document templates.
type Renderer struct {
	tmpl     *template.Template
	currency string
	now      func() time.Time
}

// NewRenderer parses the embedded templates. Amounts are suffixed with currency.
func NewRenderer(currency string) (*Renderer, error) {
	funcs := template.FuncMap{
		"money":         Money,
		"qty":           quantity,
		"dim":           quantity,
		"inc":           func(i int) int { return i + 1 },
		"windowType":    pricing.WindowTypeLabel,
		"profile":       pricing.ProfileLabel,
		"glass":         pricing.GlassLabel,
		"quoteStatus":   func(s string) string { return lookup(quoteStatusLabels, s) },
		"invoiceStatus": func(s string) string { return lookup(invoiceStatusLabels, s) },
		"invoiceTitle":  InvoiceTitle,
	}
	tmpl, err := template.New("documents").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse print templates: %w", err)
	}
	if currency == "" {
		currency = "DZD"
	}
	return &Renderer{tmpl: tmpl, currency: currency, now: time.Now}, nil
}

type page struct {
	Title     string
	Company   Company
	Currency  string
	AutoPrint bool
	Generated string
	Quote     models.Quote
	Invoice   models.Invoice
	Client    models.Client
	Report    Report
}

func (r *Renderer) page(title string, c Company, autoPrint bool) page {
	return page{
		Title:     title,
		Company:   c,
		Currency:  r.currency,
		AutoPrint: autoPrint,
		Generated: r.now().Format("2006-01-02 15:04"),
	}
}

// Quote writes the devis for q. autoPrint adds the script that opens the
// browser print dialog; leave it off when rendering for PDF or mail.
func (r *Renderer) Quote(w io.Writer, c Company, q models.Quote, client models.Client, autoPrint bool) error {
	p := r.page("Devis "+q.ID, c, autoPrint)
	p.Quote = q
	p.Client = client
	return r.tmpl.ExecuteTemplate(w, "quote.html", p)
}

// Invoice writes the invoice document for inv.
func (r *Renderer) Invoice(w io.Writer, c Company, inv models.Invoice, client models.Client, autoPrint bool) error {
	p := r.page(inv.InvoiceNumber, c, autoPrint)
	p.Invoice = inv
	p.Client = client
	return r.tmpl.ExecuteTemplate(w, "invoice.html", p)
}

// Report writes a tabular report.
func (r *Renderer) Report(w io.Writer, c Company, rep Report, autoPrint bool) error {
	p := r.page(rep.Title, c, autoPrint)
	p.Report = rep
	return r.tmpl.ExecuteTemplate(w, "report.html", p)
}

// QuoteHTML is Quote rendered into memory.
func (r *Renderer) QuoteHTML(c Company, q models.Quote, client models.Client, autoPrint bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Quote(&buf, c, q, client, autoPrint); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InvoiceHTML is Invoice rendered into memory.
func (r *Renderer) InvoiceHTML(c Company, inv models.Invoice, client models.Client, autoPrint bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Invoice(&buf, c, inv, client, autoPrint); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReportHTML is Report rendered into memory.
func (r *Renderer) ReportHTML(c Company, rep Report, autoPrint bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Report(&buf, c, rep, autoPrint); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InvoiceTitle is the bilingual heading for an invoice type.
func InvoiceTitle(kind string) string {
	if kind == "proforma" {
		return "فاتورة شكلية / Proforma Invoice"
	}
	return "فاتورة / Invoice"
}

// Money formats v with two decimals and space-separated thousands:
// 1234567.5 becomes "1 234 567.50".
func Money(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

// quantity drops a trailing ".00" so whole numbers print cleanly.
func quantity(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func lookup(m map[string]string, k string) string {
	if v, ok := m[k]; ok {
		return v
	}
	return k
}
