package realtime

import (
	"net/http"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/grocerybid-backend/pkg/auth"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Handler upgrades authenticated requests and joins the caller to the room
// named after their user id.
type Handler struct {
	hub          *Hub
	jwtCfg       config.JWTConfig
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewHandler builds the /ws handler. An empty origin list allows any origin.
func NewHandler(hub *Hub, jwtCfg config.JWTConfig, cfg config.RealtimeConfig) *Handler {
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return &Handler{
		hub:          hub,
		jwtCfg:       jwtCfg,
		pingInterval: ping,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := pkgAuth.ParseAccessToken(h.jwtCfg, token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := h.hub.register(claims.UserID.String())
	go h.writePump(conn, c)
	h.readPump(conn, c)
}

// readPump discards client frames and exits on disconnect.
func (h *Handler) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.hub.unregister(c)
		conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// bearerToken reads the Authorization header, falling back to ?token= since
// browsers cannot set headers on a websocket handshake.
func bearerToken(r *http.Request) string {
	if token := pkgAuth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	// browsers cannot set headers on a websocket upgrade
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
