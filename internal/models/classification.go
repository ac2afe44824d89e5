package models

import "time"

// Classification represents a stored classification result.
type Classification struct {
	ID          int64        `json:"id"`
	SessionID   string       `json:"session_id"`
	Generation  uint64       `json:"generation"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"content_type"`
	FileSize    int64        `json:"filesize"`
	ModelName   string       `json:"model"`
	Predictions []Prediction `json:"predictions"`
	Rendered    string       `json:"rendered"`
	DurationMS  int64        `json:"duration_ms"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ClassificationFilter contains filtering options for querying history.
type ClassificationFilter struct {
	SessionID string
	Label     string
	Limit     int
	Offset    int
}

// ClassificationStats summarises the stored history.
type ClassificationStats struct {
	Total       int            `json:"total"`
	TopLabels   map[string]int `json:"top_labels"`
	AvgDuration float64        `json:"avg_duration_ms"`
}
