package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/models"
	"github.com/medotmani10/windoorpvc/internal/websocket"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionExport   = "EXPORT"
	ActionLogin    = "LOGIN"
	ActionLogout   = "LOGOUT"
	ActionConfirm  = "CONFIRM"
	ActionReject   = "REJECT"
	ActionConvert  = "CONVERT"
	ActionFinalize = "FINALIZE"
	ActionPay      = "PAY"
	ActionCancel   = "CANCEL"
	ActionEmail    = "EMAIL"
)

// Options contains all fields of an audit entry.
type Options struct {
	UserID      int
	Username    string
	Action      string
	Module      string
	RecordID    string
	Summary     string
	BeforeValue interface{}
	AfterValue  interface{}
	IPAddress   string
	UserAgent   string
}

// Recorder writes audit entries and announces them on the websocket hub.
type Recorder struct {
	DB  *sql.DB
	Hub *websocket.Hub
	Log *zap.Logger
}

// NewRecorder returns a Recorder. hub and log may be nil.
func NewRecorder(db *sql.DB, hub *websocket.Hub, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{DB: db, Hub: hub, Log: log}
}

// Record logs an action taken by the user behind r.
func (rec *Recorder) Record(r *http.Request, action, module, recordID, summary string) {
	rec.RecordDiff(r, action, module, recordID, summary, nil, nil)
}

// RecordDiff logs an action with before and after snapshots.
func (rec *Recorder) RecordDiff(r *http.Request, action, module, recordID, summary string, before, after interface{}) {
	if rec == nil {
		return
	}
	opts := Options{
		Action:      action,
		Module:      module,
		RecordID:    recordID,
		Summary:     summary,
		BeforeValue: before,
		AfterValue:  after,
		Username:    "system",
	}
	if r != nil {
		opts.UserID, opts.Username = GetUserContext(r, rec.DB)
		opts.IPAddress = GetClientIP(r)
		opts.UserAgent = r.UserAgent()
	}
	if err := Log(rec.DB, rec.Hub, opts); err != nil {
		rec.Log.Error("audit log write failed",
			zap.String("module", module),
			zap.String("action", action),
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}

// Log inserts a full audit entry and broadcasts the change.
func Log(db *sql.DB, hub *websocket.Hub, opts Options) error {
	var beforeJSON, afterJSON []byte
	if opts.BeforeValue != nil {
		beforeJSON, _ = json.Marshal(opts.BeforeValue)
	}
	if opts.AfterValue != nil {
		afterJSON, _ = json.Marshal(opts.AfterValue)
	}
	var userID interface{}
	if opts.UserID != 0 {
		userID = opts.UserID
	}

	_, err := db.Exec(`INSERT INTO audit_log
		(user_id, username, action, module, record_id, summary, before_value, after_value, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, opts.Username, opts.Action, opts.Module, opts.RecordID,
		opts.Summary, nullJSON(beforeJSON), nullJSON(afterJSON), opts.IPAddress, opts.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	hub.Broadcast(websocket.Event{
		Type:   opts.Module + "_" + strings.ToLower(opts.Action),
		ID:     opts.RecordID,
		Action: opts.Action,
	})
	return nil
}

func nullJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

// GetUserContext extracts user information from request.
func GetUserContext(r *http.Request, db *sql.DB) (userID int, username string) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		return 0, "system"
	}
	err = db.QueryRow("SELECT u.id, u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).
		Scan(&userID, &username)
	if err != nil {
		return 0, "system"
	}
	return userID, username
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// CleanupOldAuditLogs deletes audit log entries older than retentionDays.
// A retention of 0 keeps everything.
func CleanupOldAuditLogs(db *sql.DB, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02 15:04:05")
	result, err := db.Exec("DELETE FROM audit_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Filter narrows a listing of the audit log.
type Filter struct {
	Module   string
	Username string
	RecordID string
	From     string
	To       string
	Limit    int
	Offset   int
}

// List returns matching entries, newest first, and the total match count.
func List(db *sql.DB, f Filter) ([]models.AuditEntry, int, error) {
	var conds []string
	var args []interface{}
	if f.Module != "" {
		conds = append(conds, "module = ?")
		args = append(args, f.Module)
	}
	if f.Username != "" {
		conds = append(conds, "username = ?")
		args = append(args, f.Username)
	}
	if f.RecordID != "" {
		conds = append(conds, "record_id = ?")
		args = append(args, f.RecordID)
	}
	if f.From != "" {
		conds = append(conds, "date(created_at) >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conds = append(conds, "date(created_at) <= ?")
		args = append(args, f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(`SELECT id, COALESCE(user_id, 0), COALESCE(username, ''), action, module,
		COALESCE(record_id, ''), COALESCE(summary, ''), COALESCE(before_value, ''), COALESCE(after_value, ''),
		COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM audit_log`+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action, &e.Module, &e.RecordID,
			&e.Summary, &e.BeforeValue, &e.AfterValue, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
