package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Company holds the values written to the settings row on first start.
type Company struct {
	Name    string
	Address string
	Phone   string
	Email   string
	TaxID   string
}

// Seed inserts the singleton company_settings row when it is missing.
// Existing settings are never overwritten.
func Seed(ctx context.Context, db *sql.DB, c Company) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO company_settings
		(id, company_name, address, phone, email, tax_id) VALUES (1, ?, ?, ?, ?, ?)`,
		c.Name, c.Address, c.Phone, c.Email, c.TaxID)
	if err != nil {
		return fmt.Errorf("seed company settings: %w", err)
	}
	return nil
}
