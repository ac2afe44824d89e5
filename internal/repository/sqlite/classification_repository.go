package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"webclassifier/internal/models"
	"webclassifier/internal/repository"
)

var _ repository.ClassificationRepository = (*ClassificationRepository)(nil)

// ClassificationRepository implements repository.ClassificationRepository for SQLite.
type ClassificationRepository struct {
	db *DB
}

// NewClassificationRepository creates a new SQLite classification repository.
func NewClassificationRepository(db *DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

// Insert stores a classification and its ranked predictions in one transaction.
func (r *ClassificationRepository) Insert(c *models.Classification) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO classifications (session_id, generation, filename, content_type, filesize, model, rendered, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.SessionID, c.Generation, c.Filename, c.ContentType, c.FileSize, c.ModelName, c.Rendered, c.DurationMS, c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert classification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read classification id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO predictions (classification_id, rank, label, probability)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for rank, p := range c.Predictions {
		if _, err := stmt.Exec(id, rank, p.Label, p.Probability); err != nil {
			return 0, fmt.Errorf("failed to insert prediction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit classification: %w", err)
	}

	c.ID = id
	return id, nil
}

// GetByID retrieves a classification by its ID; nil when it does not exist.
func (r *ClassificationRepository) GetByID(id int64) (*models.Classification, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var c models.Classification
	err := r.db.Conn().QueryRow(`
		SELECT id, session_id, generation, filename, content_type, filesize, model, rendered, duration_ms, created_at
		FROM classifications WHERE id = ?
	`, id).Scan(&c.ID, &c.SessionID, &c.Generation, &c.Filename, &c.ContentType, &c.FileSize,
		&c.ModelName, &c.Rendered, &c.DurationMS, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	preds, err := r.predictionsFor(c.ID)
	if err != nil {
		return nil, err
	}
	c.Predictions = preds
	return &c, nil
}

// GetAll retrieves classifications, newest first, based on filter criteria.
func (r *ClassificationRepository) GetAll(filter *models.ClassificationFilter) ([]models.Classification, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	query := `
		SELECT c.id, c.session_id, c.generation, c.filename, c.content_type, c.filesize, c.model, c.rendered, c.duration_ms, c.created_at
		FROM classifications c
	` + where + " ORDER BY c.created_at DESC, c.id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}

	var out []models.Classification
	for rows.Next() {
		var c models.Classification
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Generation, &c.Filename, &c.ContentType, &c.FileSize,
			&c.ModelName, &c.Rendered, &c.DurationMS, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classifications: %w", err)
	}

	// The pool has a single connection, so predictions are loaded after the
	// outer rows are closed.
	for i := range out {
		preds, err := r.predictionsFor(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Predictions = preds
	}

	return out, nil
}

// GetTotalCount returns the number of classifications matching filter, ignoring paging.
func (r *ClassificationRepository) GetTotalCount(filter *models.ClassificationFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM classifications c `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count classifications: %w", err)
	}
	return count, nil
}

// GetStats returns totals and how often each label ranked first. An empty
// sessionID covers every session.
func (r *ClassificationRepository) GetStats(sessionID string) (*models.ClassificationStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildWhere(&models.ClassificationFilter{SessionID: sessionID})

	stats := &models.ClassificationStats{TopLabels: make(map[string]int)}
	var avg sql.NullFloat64
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*), AVG(c.duration_ms) FROM classifications c `+where, args...).
		Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	stats.AvgDuration = avg.Float64

	rows, err := r.db.Conn().Query(`
		SELECT p.label, COUNT(*) FROM predictions p
		JOIN classifications c ON c.id = p.classification_id
	`+where+joinAnd(where)+` p.rank = 0 GROUP BY p.label`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan top label: %w", err)
		}
		stats.TopLabels[label] = n
	}

	return stats, rows.Err()
}

// DeleteBySession removes a session's history and returns how many rows went.
func (r *ClassificationRepository) DeleteBySession(sessionID string) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM classifications WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete classifications: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes every classification.
func (r *ClassificationRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM classifications`); err != nil {
		return fmt.Errorf("failed to delete classifications: %w", err)
	}
	return nil
}

func (r *ClassificationRepository) predictionsFor(id int64) ([]models.Prediction, error) {
	rows, err := r.db.Conn().Query(`
		SELECT label, probability FROM predictions WHERE classification_id = ? ORDER BY rank
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	preds := []models.Prediction{}
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(&p.Label, &p.Probability); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

func buildWhere(filter *models.ClassificationFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var conds []string
	var args []interface{}

	if filter.SessionID != "" {
		conds = append(conds, "c.session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Label != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM predictions lp WHERE lp.classification_id = c.id AND lp.label = ?)")
		args = append(args, filter.Label)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func joinAnd(where string) string {
	if where == "" {
		return " WHERE"
	}
	return " AND"
}
