package route

import (
	"net/http"
	"os"
	"path/filepath"

	"webclassifier/internal/config"
	"webclassifier/internal/handler"
	"webclassifier/internal/logger"
	"webclassifier/internal/middleware"
	"webclassifier/internal/service"
	"webclassifier/internal/service/storage"
)

// pageHandler serves / as static/index.html and /path as static/path.html if
// the file exists; otherwise 404.
func pageHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints,
// and wraps the mux with the session middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))

	// API endpoints
	mux.HandleFunc("/api/upload", handler.UploadHandler(manager, cfg, logger))
	mux.HandleFunc("/api/state", handler.StateHandler(manager))
	mux.HandleFunc("/api/events", handler.EventsWebsocketHandler(manager, logger))
	mux.HandleFunc(storage.PreviewPath, handler.PreviewHandler(manager))
	mux.HandleFunc("/api/history", handler.HistoryHandler(manager, logger))
	mux.HandleFunc("/health", handler.HealthHandler(manager))

	// Log endpoints
	mux.HandleFunc("/logs/info", handler.ShowInfoLogsHandler(logger))
	mux.HandleFunc("/logs/warning", handler.ShowWarningLogsHandler(logger))
	mux.HandleFunc("/logs/error", handler.ShowErrorLogsHandler(logger))

	mux.HandleFunc("/logs/info/clear", handler.ClearInfoLogsHandler(logger))
	mux.HandleFunc("/logs/warning/clear", handler.ClearWarningLogsHandler(logger))
	mux.HandleFunc("/logs/error/clear", handler.ClearErrorLogsHandler(logger))

	mux.HandleFunc("/", pageHandler(cfg.StaticDir))

	return middleware.SessionMiddleware(mux)
}
