package auth

import (
	"errors"
	"fmt"
	"unicode"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 12

// ErrWeakPassword wraps every password policy failure.
var ErrWeakPassword = errors.New("weak password")

// ErrUnknownTable is returned for a table that records cannot reference.
var ErrUnknownTable = errors.New("invalid table reference")

// referenceTables are the tables whose text ids other records point at.
var referenceTables = map[string]bool{
	"clients":      true,
	"quotes":       true,
	"projects":     true,
	"materials":    true,
	"suppliers":    true,
	"purchases":    true,
	"workers":      true,
	"transporters": true,
	"invoices":     true,
	"transactions": true,
}

// ReferenceTable returns table when a foreign key may name it. The result
// is safe to splice into SQL.
func ReferenceTable(table string) (string, error) {
	if !referenceTables[table] {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return table, nil
}

// ValidatePasswordStrength requires MinPasswordLength characters drawn from
// at least three of: upper case, lower case, digits, symbols.
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLetter(r):
			// caseless scripts such as Arabic count as lower case
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{upper, lower, digit, symbol} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf("%w: password must mix at least 3 of upper case, lower case, digits and symbols", ErrWeakPassword)
	}
	return nil
}
