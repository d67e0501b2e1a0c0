package auth

import (
	"database/sql"
	"time"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

// IncrementFailedLoginAttempts counts a failed login and locks the account
// once the limit is reached.
func IncrementFailedLoginAttempts(db *sql.DB, username string) error {
	lockUntil := time.Now().UTC().Add(AccountLockoutDuration).Format(TimeLayout)
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, MaxFailedLoginAttempts, lockUntil, username)
	return err
}

// ResetFailedLoginAttempts resets the failed login counter after successful login.
func ResetFailedLoginAttempts(db *sql.DB, username string) error {
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE username = ?`, username)
	return err
}

// IsAccountLocked checks if an account is currently locked. An expired
// lock is cleared on the way out.
func IsAccountLocked(db *sql.DB, username string) (bool, error) {
	var lockedUntil sql.NullString
	err := db.QueryRow("SELECT locked_until FROM users WHERE username = ?", username).Scan(&lockedUntil)
	if err != nil {
		return false, err
	}
	if !lockedUntil.Valid || lockedUntil.String == "" {
		return false, nil
	}

	var lockTime time.Time
	var parseErr error
	for _, layout := range []string{TimeLayout, time.RFC3339, time.RFC3339Nano} {
		lockTime, parseErr = time.Parse(layout, lockedUntil.String)
		if parseErr == nil {
			break
		}
	}
	if parseErr != nil {
		return false, nil
	}

	if time.Now().UTC().Before(lockTime) {
		return true, nil
	}
	return false, ResetFailedLoginAttempts(db, username)
}
