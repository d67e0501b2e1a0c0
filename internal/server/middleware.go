package server

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
)

// GzipResponseWriter wraps http.ResponseWriter to support gzip compression.
type GzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w GzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// GzipMiddleware compresses responses when client supports gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		// websocket upgrades and ranged reads bypass compression
		if r.Header.Get("Range") != "" || r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzw := GzipResponseWriter{Writer: gz, ResponseWriter: w}
		next.ServeHTTP(gzw, r)
	})
}

type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs request method, path, status and duration. Also sets CORS headers.
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
			if r.Method == "OPTIONS" {
				w.WriteHeader(200)
				return
			}
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}
			lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", lw.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		csp := "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: blob:; " +
			"font-src 'self' data:; " +
			"connect-src 'self'"
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// publicAPIPaths never require a session.
var publicAPIPaths = map[string]bool{
	"/api/v1/auth/login":    true,
	"/api/v1/auth/register": true,
	"/api/v1/health":        true,
}

func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// RequireAuth returns an auth middleware that checks the session cookie.
// Each authenticated request slides the session expiry forward by ttl.
func RequireAuth(dbConn *sql.DB, ttl time.Duration, secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/") || publicAPIPaths[path] {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				writeJSONError(w, 401, "Unauthorized", "UNAUTHORIZED")
				return
			}

			now := time.Now().UTC()
			var userID, active int
			var username, role, lastActivity string
			err = dbConn.QueryRow(`SELECT s.user_id, u.username, u.role, u.active, COALESCE(s.last_activity, s.created_at)
				FROM sessions s JOIN users u ON s.user_id = u.id
				WHERE s.token = ? AND s.expires_at > ?`, cookie.Value, now.Format(auth.TimeLayout)).
				Scan(&userID, &username, &role, &active, &lastActivity)
			if err != nil {
				writeJSONError(w, 401, "Unauthorized", "UNAUTHORIZED")
				return
			}

			if last, err := time.Parse(auth.TimeLayout, lastActivity); err == nil && now.Sub(last) > auth.InactivityTimeout {
				dbConn.Exec("DELETE FROM sessions WHERE token = ?", cookie.Value)
				writeJSONError(w, 401, "Session expired due to inactivity", "SESSION_TIMEOUT")
				return
			}

			if active == 0 {
				writeJSONError(w, 403, "Account deactivated", "FORBIDDEN")
				return
			}

			newExpiry := now.Add(ttl)
			dbConn.Exec("UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?",
				newExpiry.Format(auth.TimeLayout), now.Format(auth.TimeLayout), cookie.Value)

			http.SetCookie(w, &http.Cookie{
				Name:     auth.SessionCookie,
				Value:    cookie.Value,
				Path:     "/",
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
				Expires:  newExpiry,
			})

			ctx := context.WithValue(r.Context(), CtxUserID, userID)
			ctx = context.WithValue(ctx, CtxUsername, username)
			ctx = context.WithValue(ctx, CtxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRBAC enforces permission-based access control on /api/v1/ routes.
func RequireRBAC(pc *auth.PermCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			role, _ := r.Context().Value(CtxRole).(string)
			if role == "" {
				next.ServeHTTP(w, r)
				return
			}

			apiPath := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/"), "/")
			module, action := auth.MapAPIPathToPermission(apiPath, r.Method)
			if module == "" || action == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !pc.HasPermission(role, module, action) {
				writeJSONError(w, 403, "Permission denied", "FORBIDDEN")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	login    rate.Limit
	api      rate.Limit
}

// Login attempts are limited to 5 per minute per address, other API calls
// to 100 per minute with a burst of 20.
const (
	loginBurst = 5
	apiBurst   = 20
)

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		login:    rate.Every(time.Minute / 5),
		api:      rate.Every(time.Minute / 100),
	}
}

// Reset clears all rate limit state.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.limiters = make(map[string]*rate.Limiter)
	rl.mu.Unlock()
}

func (rl *RateLimiter) limiter(key string, limit rate.Limit, burst int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(limit, burst)
		rl.limiters[key] = l
	}
	return l
}

// RateLimitMiddleware implements rate limiting per IP address.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := audit.GetClientIP(r)
			var l *rate.Limiter
			var burst int
			switch {
			case r.URL.Path == "/api/v1/auth/login":
				burst = loginBurst
				l = rl.limiter("login:"+ip, rl.login, burst)
			case strings.HasPrefix(r.URL.Path, "/api/"):
				burst = apiBurst
				l = rl.limiter("api:"+ip, rl.api, burst)
			default:
				next.ServeHTTP(w, r)
				return
			}

			res := l.Reserve()
			delay := res.Delay()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(burst))
			if delay > 0 {
				res.Cancel()
				retry := int(delay.Seconds()) + 1
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":      "Rate limit exceeded",
					"code":       "RATE_LIMIT_EXCEEDED",
					"retryAfter": retry,
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))

			next.ServeHTTP(w, r)
		})
	}
}

// CSRFMiddleware protects state-changing API calls with a per-user token
// sent in the X-CSRF-Token header.
func CSRFMiddleware(dbConn *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "GET" || r.Method == "HEAD" || r.Method == "OPTIONS" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(r.URL.Path, "/api/") || publicAPIPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			csrfToken := r.Header.Get("X-CSRF-Token")
			if csrfToken == "" {
				writeJSONError(w, http.StatusForbidden, "CSRF token required", "CSRF_TOKEN_MISSING")
				return
			}

			userID, ok := r.Context().Value(CtxUserID).(int)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}

			var tokenUserID int
			err := dbConn.QueryRow("SELECT user_id FROM csrf_tokens WHERE token = ? AND expires_at > ?",
				csrfToken, time.Now().UTC().Format(auth.TimeLayout)).Scan(&tokenUserID)
			if err != nil {
				writeJSONError(w, http.StatusForbidden, "Invalid or expired CSRF token", "CSRF_TOKEN_INVALID")
				return
			}
			if tokenUserID != userID {
				writeJSONError(w, http.StatusForbidden, "CSRF token does not match user session", "CSRF_TOKEN_MISMATCH")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
