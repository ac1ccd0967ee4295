package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/coolive/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and joins the caller to
// their group's room. originPatterns restricts cross-origin browsers; an
// empty list allows same-origin only.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.GroupID == 0 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket connected", "group_id", ac.GroupID, "user_id", ac.UserID)
		NewClient(hub, conn, ac.GroupID, ac.UserID).Run(r.Context())
		logger.Debug("websocket disconnected", "group_id", ac.GroupID, "user_id", ac.UserID)
	}
}
