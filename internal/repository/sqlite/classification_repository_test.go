package sqlite

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webclassifier/internal/models"
)

func newTestRepo(t *testing.T) *ClassificationRepository {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewClassificationRepository(db)
}

func sample(session, top string, at time.Time) *models.Classification {
	return &models.Classification{
		SessionID:   session,
		Generation:  1,
		Filename:    top + ".jpg",
		ContentType: "image/jpeg",
		FileSize:    1024,
		ModelName:   "mobilenet_v2",
		Predictions: []models.Prediction{
			{Label: top, Probability: 0.8},
			{Label: "other", Probability: 0.1},
		},
		Rendered:   top + ": 0.80<br />other: 0.10",
		DurationMS: 12,
		CreatedAt:  at,
	}
}

func TestClassificationRepository_InsertAndGet(t *testing.T) {
	repo := newTestRepo(t)

	c := sample("s1", "cat", time.Now())
	id, err := repo.Insert(c)
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "cat.jpg", got.Filename)
	assert.Equal(t, c.Rendered, got.Rendered)
	require.Len(t, got.Predictions, 2)
	assert.Equal(t, "cat", got.Predictions[0].Label, "rank order is preserved")
	assert.InDelta(t, 0.8, got.Predictions[0].Probability, 1e-9)
}

func TestClassificationRepository_GetByIDMissing(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID(42)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClassificationRepository_GetAllFilters(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Now().Add(-time.Hour)

	for i, c := range []*models.Classification{
		sample("s1", "cat", base),
		sample("s1", "dog", base.Add(time.Minute)),
		sample("s2", "cat", base.Add(2*time.Minute)),
	} {
		_, err := repo.Insert(c)
		require.NoError(t, err, "insert %d", i)
	}

	all, err := repo.GetAll(&models.ClassificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s2", all[0].SessionID, "newest first")

	s1, err := repo.GetAll(&models.ClassificationFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, s1, 2)
	assert.Equal(t, "dog", s1[0].Predictions[0].Label)

	cats, err := repo.GetAll(&models.ClassificationFilter{Label: "cat"})
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	page, err := repo.GetAll(&models.ClassificationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "dog", page[0].Predictions[0].Label)

	count, err := repo.GetTotalCount(&models.ClassificationFilter{SessionID: "s1", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClassificationRepository_Stats(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()
	_, _ = repo.Insert(sample("s1", "cat", now))
	_, _ = repo.Insert(sample("s1", "cat", now))
	_, _ = repo.Insert(sample("s1", "dog", now))
	_, _ = repo.Insert(sample("s2", "fish", now))

	stats, err := repo.GetStats("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"cat": 2, "dog": 1}, stats.TopLabels)
	assert.InDelta(t, 12, stats.AvgDuration, 1e-9)

	all, err := repo.GetStats("")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 1, all.TopLabels["fish"])

	empty, err := repo.GetStats("nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.TopLabels)
}

func TestClassificationRepository_DeleteBySessionCascades(t *testing.T) {
	repo := newTestRepo(t)
	id, err := repo.Insert(sample("s1", "cat", time.Now()))
	require.NoError(t, err)
	_, err = repo.Insert(sample("s2", "dog", time.Now()))
	require.NoError(t, err)

	n, err := repo.DeleteBySession("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, got)

	var orphans int
	require.NoError(t, repo.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM predictions WHERE classification_id = ?`, id).Scan(&orphans))
	assert.Equal(t, 0, orphans)

	require.NoError(t, repo.DeleteAll())
	count, err := repo.GetTotalCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClassificationRepository_ConcurrentInserts(t *testing.T) {
	repo := newTestRepo(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := repo.Insert(sample(fmt.Sprintf("s%d", idx), "cat", time.Now()))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repo.GetTotalCount(nil)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}
