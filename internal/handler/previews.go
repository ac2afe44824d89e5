package handler

import (
	"net/http"
	"strconv"
	"strings"

	"webclassifier/internal/middleware"
	"webclassifier/internal/service"
	"webclassifier/internal/service/storage"
)

// PreviewHandler serves the display handle of a selected image. Handles
// belong to their session and return 404 once released.
func PreviewHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, storage.PreviewPath)
		p, ok := manager.GetPreviewStore().Get(id)
		if !ok || p.Session != middleware.SessionID(r.Context()) {
			http.NotFound(w, r)
			return
		}

		contentType := p.ContentType
		if !strings.HasPrefix(contentType, "image/") {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(p.Data)
		}
	}
}
