package dto

import "webclassifier/internal/models"

// ErrorResponse is returned by every handler on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadResponse acknowledges a selection; the result arrives as state updates.
type UploadResponse struct {
	Generation uint64 `json:"generation"`
	PreviewURL string `json:"preview_url"`
}

// HistoryResponse is a page of stored classifications.
type HistoryResponse struct {
	Items []models.Classification     `json:"items"`
	Total int                         `json:"total"`
	Stats *models.ClassificationStats `json:"stats,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Phase    string `json:"phase"`
	Sessions int    `json:"sessions"`
	Viewers  int    `json:"viewers"`
	Error    string `json:"error,omitempty"`
}
