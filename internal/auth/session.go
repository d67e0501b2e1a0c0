package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "windoorpvc_session"

// TimeLayout matches SQLite's CURRENT_TIMESTAMP.
const TimeLayout = "2006-01-02 15:04:05"

// InactivityTimeout ends sessions idle for longer than this.
const InactivityTimeout = 30 * time.Minute

// CSRFTokenTTL is how long a CSRF token stays valid.
const CSRFTokenTTL = 24 * time.Hour

// NewToken returns 32 random bytes, hex encoded.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// CreateSession stores a new session for userID and returns its token and expiry.
func CreateSession(db *sql.DB, userID int, ttl time.Duration) (string, time.Time, error) {
	token := NewToken()
	now := time.Now().UTC()
	expires := now.Add(ttl)
	_, err := db.Exec("INSERT INTO sessions (token, user_id, created_at, expires_at, last_activity) VALUES (?, ?, ?, ?, ?)",
		token, userID, now.Format(TimeLayout), expires.Format(TimeLayout), now.Format(TimeLayout))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// DeleteSession ends a session.
func DeleteSession(db *sql.DB, token string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CreateCSRFToken issues a CSRF token bound to userID.
func CreateCSRFToken(db *sql.DB, userID int) (string, error) {
	token := NewToken()
	expires := time.Now().UTC().Add(CSRFTokenTTL)
	_, err := db.Exec("INSERT INTO csrf_tokens (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expires.Format(TimeLayout))
	if err != nil {
		return "", err
	}
	return token, nil
}

// PurgeExpired deletes expired sessions and CSRF tokens and returns how
// many sessions were removed.
func PurgeExpired(db *sql.DB) (int64, error) {
	now := time.Now().UTC().Format(TimeLayout)
	res, err := db.Exec("DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	if _, err := db.Exec("DELETE FROM csrf_tokens WHERE expires_at <= ?", now); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
