package server

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/medotmani10/windoorpvc/internal/audit"
	"github.com/medotmani10/windoorpvc/internal/auth"
	"github.com/medotmani10/windoorpvc/internal/config"
	"github.com/medotmani10/windoorpvc/internal/pricing"
	"github.com/medotmani10/windoorpvc/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUserID   ContextKey = "userID"
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
)

// App holds shared dependencies for the application.
type App struct {
	DB        *sql.DB
	Hub       *websocket.Hub
	PermCache *auth.PermCache
	Log       *zap.Logger
	Config    *config.Config
	Estimator *pricing.Estimator
	Audit     *audit.Recorder
}

// UserFromContext returns the authenticated user's id and role.
func UserFromContext(ctx context.Context) (int, string) {
	id, _ := ctx.Value(CtxUserID).(int)
	role, _ := ctx.Value(CtxRole).(string)
	return id, role
}

// UsernameFromContext returns the authenticated username, or "system".
func UsernameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(CtxUsername).(string); ok && name != "" {
		return name
	}
	return "system"
}
