package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account locked after too many failed attempts")
	ErrAccountDisabled    = errors.New("account deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidRole        = errors.New("role must be one of admin, staff, readonly")
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleReadonly:
		return true
	}
	return false
}

// NewUser describes an account to create.
type NewUser struct {
	Username    string
	Password    string
	DisplayName string
	Email       string
	Role        string
}

// CreateUser validates and inserts a user, returning its id.
func CreateUser(db *sql.DB, u NewUser) (int64, error) {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return 0, errors.New("username is required")
	}
	if u.Role == "" {
		u.Role = RoleStaff
	}
	if !ValidRole(u.Role) {
		return 0, ErrInvalidRole
	}
	if err := ValidatePasswordStrength(u.Password); err != nil {
		return 0, err
	}
	var exists int
	if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", u.Username).Scan(&exists); err != nil {
		return 0, err
	}
	if exists > 0 {
		return 0, ErrUserExists
	}
	hash, err := HashPassword(u.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	res, err := db.Exec(`INSERT INTO users (username, password_hash, display_name, email, role) VALUES (?, ?, ?, ?, ?)`,
		u.Username, hash, u.DisplayName, u.Email, u.Role)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CountUsers returns the number of accounts.
func CountUsers(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// Authenticate checks credentials, applying the lockout policy. It returns
// the user id and role on success.
func Authenticate(db *sql.DB, username, password string) (int, string, error) {
	var id, active int
	var hash, role string
	err := db.QueryRow("SELECT id, password_hash, role, active FROM users WHERE username = ?", username).
		Scan(&id, &hash, &role, &active)
	if err == sql.ErrNoRows {
		return 0, "", ErrInvalidCredentials
	}
	if err != nil {
		return 0, "", err
	}

	locked, err := IsAccountLocked(db, username)
	if err != nil {
		return 0, "", err
	}
	if locked {
		return 0, "", ErrAccountLocked
	}

	if !CheckPassword(hash, password) {
		if err := IncrementFailedLoginAttempts(db, username); err != nil {
			return 0, "", err
		}
		return 0, "", ErrInvalidCredentials
	}
	if active == 0 {
		return 0, "", ErrAccountDisabled
	}
	if err := ResetFailedLoginAttempts(db, username); err != nil {
		return 0, "", err
	}
	db.Exec("UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", id)
	return id, role, nil
}
