package admin

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/mailer"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/printing"
	"github.com/medotmani10/windoorpvc/internal/response"
	"github.com/medotmani10/windoorpvc/internal/validation"
)

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := printing.LoadSettings(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, s)
}

func (h *Handler) saveSettings(s models.CompanySettings) error {
	_, err := h.DB.Exec(`INSERT INTO company_settings
		(id, company_name, logo_url, address, phone, email, tax_id, footer_text, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET company_name = excluded.company_name, logo_url = excluded.logo_url,
			address = excluded.address, phone = excluded.phone, email = excluded.email,
			tax_id = excluded.tax_id, footer_text = excluded.footer_text, updated_at = CURRENT_TIMESTAMP`,
		s.CompanyName, s.LogoURL, s.Address, s.Phone, s.Email, s.TaxID, s.FooterText)
	return err
}

// UpdateSettings handles PUT /api/v1/settings. The logo is only changed by
// the upload endpoint.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	before, err := printing.LoadSettings(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var s models.CompanySettings
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	s.CompanyName = strings.TrimSpace(s.CompanyName)
	s.LogoURL = before.LogoURL

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "company_name", s.CompanyName)
	validation.ValidateMaxLength(ve, "company_name", s.CompanyName, 255)
	validation.ValidateEmail(ve, "email", s.Email)
	validation.ValidatePhone(ve, "phone", s.Phone)
	validation.ValidateMaxLength(ve, "footer_text", s.FooterText, 1000)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	if err := h.saveSettings(s); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	after, err := printing.LoadSettings(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.Audit.RecordDiff(r, audit.ActionUpdate, "settings", "company", "تحديث إعدادات الشركة", before, after)
	response.JSON(w, after)
}

// UploadLogo handles POST /api/v1/settings/logo (multipart field "file").
// The image is stored under UploadDir with a random name and the previous
// logo file is removed.
func (h *Handler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxLogoSize+1024*1024)
	if err := r.ParseMultipartForm(validation.MaxLogoSize); err != nil {
		response.Err(w, "file too large or invalid form", 400)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Err(w, "file is required", 400)
		return
	}
	defer file.Close()

	ve := &validation.ValidationErrors{}
	ext := validation.ValidateLogoUpload(ve, header.Filename, header.Size, header.Header.Get("Content-Type"))
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	dir := h.UploadDir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		response.Err(w, err.Error(), 500)
		return
	}
	dst.Close()

	s, err := printing.LoadSettings(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	previous := s.LogoURL
	s.LogoURL = "/uploads/" + name
	if err := h.saveSettings(s); err != nil {
		os.Remove(filepath.Join(dir, name))
		response.Err(w, err.Error(), 500)
		return
	}
	if old := strings.TrimPrefix(previous, "/uploads/"); old != previous && old != "" && !strings.Contains(old, "/") {
		os.Remove(filepath.Join(dir, old))
	}

	h.Audit.Record(r, audit.ActionUpdate, "settings", "logo", "تحديث شعار الشركة")
	response.JSON(w, map[string]string{"logo_url": s.LogoURL})
}

// HandleTestEmail sends a short message to check the SMTP settings.
func (h *Handler) HandleTestEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "to", req.To)
	validation.ValidateEmail(ve, "to", req.To)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if h.Mailer == nil {
		response.Err(w, mailer.ErrDisabled.Error(), 503)
		return
	}

	company, _ := printing.LoadSettings(h.DB)
	err := h.Mailer.Send(r.Context(), mailer.Message{
		To:      req.To,
		Subject: "رسالة تجريبية - " + company.CompanyName,
		Text:    "إعدادات البريد تعمل بشكل صحيح.",
	})
	if errors.Is(err, mailer.ErrDisabled) {
		response.Err(w, err.Error(), 503)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 502)
		return
	}
	h.Audit.Record(r, audit.ActionEmail, "settings", req.To, "رسالة تجريبية إلى "+req.To)
	response.JSON(w, map[string]string{"status": "sent", "to": req.To})
}
