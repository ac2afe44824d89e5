package handler

import (
	"errors"
	"io"
	"net/http"

	"webclassifier/internal/config"
	"webclassifier/internal/dto"
	"webclassifier/internal/logger"
	"webclassifier/internal/middleware"
	"webclassifier/internal/service"
	"webclassifier/internal/service/storage"
	"webclassifier/internal/state"
)

// UploadFormField is the multipart field carrying the selected file.
const UploadFormField = "image"

// UploadHandler accepts a file selection and starts classifying it. The
// result is delivered asynchronously through the session's state.
func UploadHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := cfg.MaxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

		file, header, err := r.FormFile(UploadFormField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
				writeError(w, http.StatusBadRequest, state.ErrNoFileSelected.Error())
			default:
				logger.Warning("Failed to parse upload: %v", err)
				writeError(w, http.StatusBadRequest, "invalid upload")
			}
			return
		}
		defer file.Close()

		if header.Size > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error("Failed to read upload %s: %v", header.Filename, err)
			writeError(w, http.StatusBadRequest, "failed to read file")
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}

		sessionID := middleware.SessionID(r.Context())
		s, err := manager.Session(sessionID).Select(header.Filename, contentType, data)
		switch {
		case errors.Is(err, state.ErrNoFileSelected):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, storage.ErrStoreFull):
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			logger.Error("Failed to select %s for session %s: %v", header.Filename, sessionID, err)
			writeError(w, http.StatusInternalServerError, "failed to accept file")
			return
		}

		logger.Info("Session %s selected %s (%d bytes, generation %d)", sessionID, header.Filename, len(data), s.Generation)
		writeJSON(w, http.StatusAccepted, dto.UploadResponse{
			Generation: s.Generation,
			PreviewURL: s.Image.PreviewURL,
		})
	}
}
