package validation

import (
	"database/sql"
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	if !IsOneOf(value, allowed) {
		ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	}
}

// IsOneOf reports whether value is in allowed.
func IsOneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// DateLayout is the format of every date column.
const DateLayout = "2006-01-02"

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidateDateOrder checks that end is not before start when both are set.
func ValidateDateOrder(ve *ValidationErrors, field, start, end string) {
	if start == "" || end == "" {
		return
	}
	s, err1 := time.Parse(DateLayout, start)
	e, err2 := time.Parse(DateLayout, end)
	if err1 != nil || err2 != nil {
		return
	}
	if e.Before(s) {
		ve.Add(field, "must not be before the start date")
	}
}

// ValidatePositiveFloat checks a field is > 0.
func ValidatePositiveFloat(ve *ValidationErrors, field string, value float64) {
	if value <= 0 {
		ve.Add(field, "must be a positive number")
	}
}

// ValidateNonNegativeFloat checks a field is >= 0.
func ValidateNonNegativeFloat(ve *ValidationErrors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// Upper bounds that keep amounts in a sane range for a small workshop.
const (
	MaxQuantity     = 1000000.0
	MaxAmount       = 1000000000.0
	MaxDimensionCM  = 5000.0
	MaxStringLength = 1000
	MaxTextLength   = 10000
)

// ValidateMaxQuantity checks quantity doesn't exceed reasonable maximum.
func ValidateMaxQuantity(ve *ValidationErrors, field string, value float64) {
	if value > MaxQuantity {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %.0f", MaxQuantity))
	}
}

// ValidateAmount checks a money value is >= 0 and below MaxAmount.
func ValidateAmount(ve *ValidationErrors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
		return
	}
	if value > MaxAmount {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed amount of %.0f", MaxAmount))
	}
}

// ValidateEmail checks a field is a valid email (if non-empty).
func ValidateEmail(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		ve.Add(field, "must be a valid email address")
	}
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{5,19}$`)

// ValidatePhone accepts local (0550 12 34 56) and international (+213...) numbers.
func ValidatePhone(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !phonePattern.MatchString(value) {
		ve.Add(field, "must be a valid phone number")
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// ValidateForeignKey checks that a referenced record exists.
// tableValidator whitelists the table name (auth.ReferenceTable).
func ValidateForeignKey(ve *ValidationErrors, db *sql.DB, field, table, id string, tableValidator func(string) (string, error)) {
	if id == "" {
		return
	}

	validatedTable, err := tableValidator(table)
	if err != nil {
		ve.Add(field, "invalid table reference")
		return
	}

	var count int
	err = db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id=?", validatedTable), id).Scan(&count)
	if err != nil || count == 0 {
		ve.Add(field, fmt.Sprintf("references non-existent %s: %s", validatedTable, id))
	}
}

// Ref names a column that may point at a record. Where, when set, narrows
// the rows that count as references.
type Ref struct {
	Table string
	Col   string
	Where string
}

// FindReference returns the first table in refs holding a row that points
// at id, or "" when the record is unreferenced. Table and column names come
// from code, never from requests.
func FindReference(db *sql.DB, id string, refs []Ref) (string, error) {
	for _, ref := range refs {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s=?", ref.Table, ref.Col)
		if ref.Where != "" {
			query += " AND " + ref.Where
		}
		err := db.QueryRow(query, id).Scan(&count)
		if err != nil {
			return "", err
		}
		if count > 0 {
			return ref.Table, nil
		}
	}
	return "", nil
}

// MaxLogoSize bounds the company logo upload.
const MaxLogoSize = 2 * 1024 * 1024

var logoExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// ValidateLogoUpload checks size and type of an uploaded logo and returns
// the extension to store it under.
func ValidateLogoUpload(ve *ValidationErrors, filename string, size int64, contentType string) string {
	if size == 0 {
		ve.Add("file", "cannot be empty (0 bytes)")
		return ""
	}
	if size > MaxLogoSize {
		ve.Add("file", fmt.Sprintf("exceeds maximum size of %d MB", MaxLogoSize/(1024*1024)))
		return ""
	}
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := logoExtensions[ext]
	if !ok {
		ve.Add("file", "must be a PNG, JPEG, WebP or SVG image")
		return ""
	}
	if ct := strings.TrimSpace(strings.Split(contentType, ";")[0]); ct != "" && ct != "application/octet-stream" && ct != want {
		ve.Add("file", fmt.Sprintf("content type %s does not match extension %s", ct, ext))
		return ""
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return ext
}
