package handler

import (
	"net/http"

	"webclassifier/internal/dto"
	"webclassifier/internal/service"
	"webclassifier/internal/state"
)

// HealthHandler reports the model phase; it answers 503 once the model
// has failed to load.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phase := manager.Phase()
		resp := dto.HealthResponse{
			Status:   "ok",
			Phase:    string(phase),
			Sessions: manager.SessionCount(),
			Viewers:  manager.GetWebsocketService().GetClientCount(),
		}

		status := http.StatusOK
		switch phase {
		case state.PhaseLoading:
			resp.Status = "loading"
		case state.PhaseFailed:
			resp.Status = "error"
			if err := manager.GetLoader().Err(); err != nil {
				resp.Error = err.Error()
			}
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
