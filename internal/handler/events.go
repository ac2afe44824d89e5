package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"webclassifier/internal/dto"
	"webclassifier/internal/logger"
	"webclassifier/internal/middleware"
	"webclassifier/internal/service"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsWebsocketHandler subscribes a browser tab to its session's state.
// The current snapshot is sent first; every later change is pushed by the
// HubService.
func EventsWebsocketHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionID(r.Context())
		ctrl := manager.Session(sessionID)

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		snapshot, version := ctrl.VersionedSnapshot()
		msg, err := json.Marshal(dto.NewStateResponse(snapshot))
		if err != nil {
			logger.Warning("Failed to encode initial state for session %s: %v", sessionID, err)
			msg = nil
		}

		hub := manager.GetWebsocketService()
		hub.Register(connection, sessionID, msg, version)
		defer hub.Unregister(connection)

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer of session %s disconnected normally", sessionID)
				} else {
					logger.Warning("Viewer of session %s disconnected with error: %v", sessionID, err)
				}
				break
			}
			ctrl.Touch()
		}
	}
}
