package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as Hub clients for the user named in ?user_id=.
//
// verify authorizes the connection for that user. With a nil verifier any
// caller can attach as any user_id, receiving that user's in-app
// notifications and feeding their activity score, so the endpoint must then
// sit behind a proxy that authenticates the user.
func HandleWebSocket(hub *Hub, verify UserVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		if verify != nil {
			if err := verify(r, userID); err != nil {
				hub.logger.Warn("websocket connection rejected", "user_id", userID, "error", err)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // app surfaces are served from other origins
		})
		if err != nil {
			hub.logger.Warn("websocket accept failed", "user_id", userID, "error", err)
			return
		}

		defer conn.CloseNow()

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}
