package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// Config holds upgrade settings
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// AllowedOrigins mirrors the CORS origins. Empty or "*" allows any.
	AllowedOrigins []string
}

// DefaultConfig returns default websocket configuration
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Handler upgrades authenticated requests and registers the session with
// the hub. It must sit behind the auth middleware.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the /ws endpoint handler
func NewHandler(hub *Hub, cfg Config) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP handles websocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountID(r.Context())
	if !ok {
		response.RenderUnauthorized(w, "")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.hub.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, h.hub, accountID)
	if !h.hub.add(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
