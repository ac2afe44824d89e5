package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"webclassifier/internal/logger"
)

// PreviewPath is the URL prefix under which previews are served.
const PreviewPath = "/api/previews/"

var ErrStoreFull = errors.New("preview store is full")

// Preview is the display handle of one selected image.
type Preview struct {
	ID          string
	Session     string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// URL is the display handle clients load the preview from.
func (p *Preview) URL() string {
	return PreviewPath + p.ID
}

// PreviewStore keeps uploaded images in memory until their handle is
// released, bounded by a total byte budget.
type PreviewStore struct {
	previews   map[string]*Preview
	totalBytes int64
	maxBytes   int64
	mu         sync.RWMutex
	logger     *logger.Logger
}

func NewPreviewStore(maxBytes int64, logger *logger.Logger) *PreviewStore {
	return &PreviewStore{
		previews: make(map[string]*Preview),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Put stores data and returns its handle.
func (s *PreviewStore) Put(session, name, contentType string, data []byte) (*Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(data))
	if s.maxBytes > 0 && s.totalBytes+size > s.maxBytes {
		s.logger.Warning("Preview store full: %d/%d bytes, rejecting %d bytes", s.totalBytes, s.maxBytes, size)
		return nil, ErrStoreFull
	}

	p := &Preview{
		ID:          uuid.NewString(),
		Session:     session,
		Name:        name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	s.previews[p.ID] = p
	s.totalBytes += size
	return p, nil
}

// Get returns a live preview.
func (s *PreviewStore) Get(id string) (*Preview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.previews[id]
	return p, ok
}

// Release frees a handle; it reports whether the handle was live.
func (s *PreviewStore) Release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(id)
}

// ReleaseSession frees every handle owned by session.
func (s *PreviewStore) ReleaseSession(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.previews {
		if p.Session == session && s.releaseLocked(id) {
			n++
		}
	}
	return n
}

func (s *PreviewStore) releaseLocked(id string) bool {
	p, ok := s.previews[id]
	if !ok {
		return false
	}
	delete(s.previews, id)
	s.totalBytes -= int64(len(p.Data))
	return true
}

// Len is the number of live handles.
func (s *PreviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.previews)
}

// Bytes is the memory held by live handles.
func (s *PreviewStore) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalBytes
}

// Run evicts orphaned handles every interval until ctx is done. A handle
// is orphaned once it is older than maxAge and live reports its session gone.
func (s *PreviewStore) Run(ctx context.Context, interval, maxAge time.Duration, live func(session string) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictOrphans(time.Now().Add(-maxAge), live); n > 0 {
				s.logger.Info("Evicted %d orphaned preview(s)", n)
			}
		}
	}
}

// EvictOrphans releases handles created before cutoff whose session is no
// longer live. A nil live treats every session as gone.
func (s *PreviewStore) EvictOrphans(cutoff time.Time, live func(session string) bool) int {
	s.mu.Lock()
	var candidates []*Preview
	for _, p := range s.previews {
		if p.CreatedAt.Before(cutoff) {
			candidates = append(candidates, p)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, p := range candidates {
		if live != nil && live(p.Session) {
			continue
		}
		if s.Release(p.ID) {
			n++
		}
	}
	return n
}
