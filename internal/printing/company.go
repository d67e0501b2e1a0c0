package printing

import (
	"database/sql"

	"github.com/medotmani10/windoorpvc/internal/database"
	"github.com/medotmani10/windoorpvc/internal/models"
)

// LoadSettings reads the company settings row. A missing row yields empty
// settings.
func LoadSettings(q database.Querier) (models.CompanySettings, error) {
	var s models.CompanySettings
	err := q.QueryRow(`SELECT company_name, logo_url, address, phone, email, tax_id, footer_text, updated_at
		FROM company_settings WHERE id = 1`).
		Scan(&s.CompanyName, &s.LogoURL, &s.Address, &s.Phone, &s.Email, &s.TaxID, &s.FooterText, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.CompanySettings{}, nil
	}
	return s, err
}

// LoadCompany is LoadSettings mapped to a letterhead.
func LoadCompany(q database.Querier) (Company, error) {
	s, err := LoadSettings(q)
	if err != nil {
		return Company{}, err
	}
	return CompanyFromSettings(s), nil
}
