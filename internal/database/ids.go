package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sequences whitelists the columns that carry PREFIX-YYYY-NNNN values.
var sequences = map[string]bool{
	"clients.id":              true,
	"quotes.id":               true,
	"projects.id":             true,
	"materials.id":            true,
	"suppliers.id":            true,
	"purchases.id":            true,
	"workers.id":              true,
	"transporters.id":         true,
	"invoices.id":             true,
	"invoices.invoice_number": true,
	"transactions.id":         true,
}

// NextID returns the next PREFIX-YYYY-NNNN identifier for table.
func NextID(q Querier, prefix, table string, digits int) (string, error) {
	return nextSequence(q, table, "id", prefix, digits)
}

// NextInvoiceNumber returns the next PREFIX-YYYY-NNNN invoice number.
// Proforma and final invoices are numbered independently by prefix.
func NextInvoiceNumber(q Querier, prefix string) (string, error) {
	return nextSequence(q, "invoices", "invoice_number", prefix, 4)
}

func nextSequence(q Querier, table, column, prefix string, digits int) (string, error) {
	if !sequences[table+"."+column] {
		return "", fmt.Errorf("no sequence for %s.%s", table, column)
	}
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"

	var last sql.NullString
	err := q.QueryRow(
		"SELECT "+column+" FROM "+table+" WHERE "+column+" LIKE ? ORDER BY length("+column+") DESC, "+column+" DESC LIMIT 1",
		pattern,
	).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("next %s for %s: %w", column, table, err)
	}

	next := 1
	if last.Valid {
		parts := strings.Split(last.String, "-")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next), nil
}
