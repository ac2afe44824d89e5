package handler

import (
	"net/http"

	"webclassifier/internal/dto"
	"webclassifier/internal/middleware"
	"webclassifier/internal/service"
)

// StateHandler returns the session's current state snapshot.
func StateHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		ctrl := manager.Session(middleware.SessionID(r.Context()))
		writeJSON(w, http.StatusOK, dto.NewStateResponse(ctrl.Snapshot()))
	}
}
