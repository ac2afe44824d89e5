package handler

import (
	"net/http"

	"webclassifier/internal/dto"
	"webclassifier/internal/logger"
	"webclassifier/internal/middleware"
	"webclassifier/internal/models"
	"webclassifier/internal/service"
)

const maxHistoryLimit = 100

// HistoryHandler lists (GET) or clears (DELETE) the session's stored
// classifications.
func HistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := manager.GetRepository()
		if repo == nil {
			writeError(w, http.StatusServiceUnavailable, "history is disabled")
			return
		}
		sessionID := middleware.SessionID(r.Context())

		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			limit := atoiDefault(q.Get("limit"), 20)
			if limit > maxHistoryLimit {
				limit = maxHistoryLimit
			}
			filter := &models.ClassificationFilter{
				SessionID: sessionID,
				Label:     q.Get("label"),
				Limit:     limit,
				Offset:    atoiDefault(q.Get("offset"), 0),
			}

			items, err := repo.GetAll(filter)
			if err != nil {
				logger.Error("Error querying history: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to load history")
				return
			}
			if items == nil {
				items = []models.Classification{}
			}

			total, err := repo.GetTotalCount(filter)
			if err != nil {
				logger.Error("Error counting history: %v", err)
				total = len(items)
			}

			stats, err := repo.GetStats(sessionID)
			if err != nil {
				logger.Error("Error computing history stats: %v", err)
				stats = nil
			}

			writeJSON(w, http.StatusOK, dto.HistoryResponse{Items: items, Total: total, Stats: stats})

		case http.MethodDelete:
			n, err := repo.DeleteBySession(sessionID)
			if err != nil {
				logger.Error("Failed to clear history for session %s: %v", sessionID, err)
				writeError(w, http.StatusInternalServerError, "failed to clear history")
				return
			}
			logger.Info("Cleared %d history entries for session %s", n, sessionID)
			writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cleared", "deleted": n})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}
