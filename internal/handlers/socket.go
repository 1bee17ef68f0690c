package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bustrack/internal/middleware"
	"bustrack/internal/realtime"
)

// NewUpgrader accepts same-origin requests and any origin in allowed.
// An empty list accepts every origin.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[origin]
			return ok
		},
	}
}

func (h HandlerSet) Socket(c *gin.Context) {
	log := middleware.RequestLogger(c, h.log)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(conn, *session(c), c.ClientIP(), h.channel, h.cfg.Tracking, log)
	client.Serve(c.Request.Context())
}
