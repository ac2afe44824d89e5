package repository

import (
	"webclassifier/internal/models"
)

// ClassificationRepository defines the interface for classification history operations.
type ClassificationRepository interface {
	// Create operations
	Insert(c *models.Classification) (int64, error)

	// Read operations
	GetByID(id int64) (*models.Classification, error)
	GetAll(filter *models.ClassificationFilter) ([]models.Classification, error)
	GetTotalCount(filter *models.ClassificationFilter) (int, error)
	GetStats(sessionID string) (*models.ClassificationStats, error)

	// Delete operations
	DeleteBySession(sessionID string) (int64, error)
	DeleteAll() error
}
