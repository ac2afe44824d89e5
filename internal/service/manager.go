package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"webclassifier/internal/config"
	"webclassifier/internal/dto"
	"webclassifier/internal/logger"
	"webclassifier/internal/models"
	"webclassifier/internal/repository"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/decode"
	"webclassifier/internal/service/session"
	"webclassifier/internal/service/storage"
	"webclassifier/internal/service/websocket"
	"webclassifier/internal/state"
)

var (
	ErrQueueFull = errors.New("inference queue is full")
	ErrNotReady  = errors.New("model is not ready")
	ErrStopped   = errors.New("manager is stopped")
)

var (
	_ session.Inferrer  = (*Manager)(nil)
	_ session.Publisher = (*Manager)(nil)
)

// Manager owns the model replicas, the inference worker pool and the
// registry of browser sessions.
type Manager struct {
	loader     *ai.Loader
	previews   *storage.PreviewStore
	hubService *websocket.HubService
	repo       repository.ClassificationRepository
	cfg        *config.Config
	logger     *logger.Logger

	sessions   map[string]*session.Controller
	sessionsMu sync.Mutex

	processingQueue chan ClassificationTask
	queueMu         sync.RWMutex
	stopped         bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// ClassificationTask is one queued inference request.
type ClassificationTask struct {
	ctx    context.Context
	input  *decode.Result
	result chan classificationResult
}

type classificationResult struct {
	predictions []models.Prediction
	err         error
}

// NewManager wires the manager; nothing runs until Start. repo may be nil,
// in which case no history is recorded.
func NewManager(loader *ai.Loader, previews *storage.PreviewStore, hub *websocket.HubService,
	repo repository.ClassificationRepository, cfg *config.Config, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		loader:          loader,
		previews:        previews,
		hubService:      hub,
		repo:            repo,
		cfg:             cfg,
		logger:          logger,
		sessions:        make(map[string]*session.Controller),
		processingQueue: make(chan ClassificationTask, cfg.QueueSize),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start begins the model load and, once it succeeds, one processing worker
// per replica. It also starts the idle-session janitor.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.loader.Start(m.ctx)

		m.wg.Add(1)
		go m.startWorkers()

		if m.cfg.SessionTTL > 0 {
			m.wg.Add(1)
			go m.janitor()
		}
	})
}

func (m *Manager) startWorkers() {
	defer m.wg.Done()

	select {
	case <-m.loader.Done():
	case <-m.ctx.Done():
		return
	}
	if m.loader.Err() != nil {
		return
	}

	replicas := m.loader.Models()
	for i, model := range replicas {
		m.wg.Add(1)
		go m.processingWorker(i, model)
	}
	m.logger.Info("Manager started %d processing worker(s)", len(replicas))
}

// processingWorker serialises inference on its own model replica.
func (m *Manager) processingWorker(workerID int, model ai.Model) {
	defer m.wg.Done()

	m.logger.Info("Processing worker %d started", workerID)

	for task := range m.processingQueue {
		if err := task.ctx.Err(); err != nil {
			task.result <- classificationResult{err: err}
			continue
		}
		preds, err := model.Classify(task.ctx, task.input)
		task.result <- classificationResult{predictions: preds, err: err}
	}

	m.logger.Info("Processing worker %d stopped", workerID)
}

// Classify queues in for inference and waits for the result. It fails fast
// with ErrQueueFull when the queue is at capacity.
func (m *Manager) Classify(ctx context.Context, in *decode.Result) ([]models.Prediction, error) {
	if !m.loader.Ready() {
		return nil, ErrNotReady
	}

	result := make(chan classificationResult, 1)
	task := ClassificationTask{ctx: ctx, input: in, result: result}

	m.queueMu.RLock()
	if m.stopped {
		m.queueMu.RUnlock()
		return nil, ErrStopped
	}
	select {
	case m.processingQueue <- task:
		m.queueMu.RUnlock()
	default:
		m.queueMu.RUnlock()
		m.logger.Warning("Processing queue full (%d), rejecting classification", cap(m.processingQueue))
		return nil, ErrQueueFull
	}

	select {
	case r := <-result:
		return r.predictions, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Session returns the controller for id, creating it on first use, and
// marks it active.
func (m *Manager) Session(id string) *session.Controller {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	if c, ok := m.sessions[id]; ok {
		c.Touch()
		return c
	}

	deps := session.Deps{
		Model:     m.loader,
		Inferrer:  m,
		Previews:  m.previews,
		Publisher: m,
		Logger:    m.logger.With("session", id),
	}
	if m.repo != nil {
		deps.Recorder = m.repo
	}

	c := session.New(id, session.Config{
		State: state.Options{
			Policy:       state.ParsePolicy(m.cfg.RacePolicy),
			ProgressStep: m.cfg.ProgressStep,
			ProgressCap:  m.cfg.ProgressCap,
		},
		TickInterval: m.cfg.ProgressInterval,
		ModelName:    m.cfg.ModelName,
	}, deps)
	m.sessions[id] = c
	m.logger.Info("Session %s opened (%d active)", id, len(m.sessions))
	return c
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*session.Controller, bool) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	c, ok := m.sessions[id]
	return c, ok
}

func (m *Manager) SessionCount() int {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	return len(m.sessions)
}

// janitor closes sessions idle for longer than SessionTTL. A session with
// an open websocket counts as active.
func (m *Manager) janitor() {
	defer m.wg.Done()

	interval := m.cfg.SessionTTL / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.closeIdle(time.Now().Add(-m.cfg.SessionTTL))
		}
	}
}

func (m *Manager) closeIdle(cutoff time.Time) {
	var idle []*session.Controller

	m.sessionsMu.Lock()
	for id, c := range m.sessions {
		if m.hubService != nil && m.hubService.SessionClientCount(id) > 0 {
			c.Touch()
			continue
		}
		if c.LastSeen().Before(cutoff) {
			idle = append(idle, c)
			delete(m.sessions, id)
		}
	}
	m.sessionsMu.Unlock()

	for _, c := range idle {
		c.Close()
		m.logger.Info("Session %s expired", c.ID())
	}
}

// Publish sends a session's state to its websocket viewers.
func (m *Manager) Publish(sessionID string, version uint64, s state.State) {
	if m.hubService == nil {
		return
	}
	msg, err := json.Marshal(dto.NewStateResponse(s))
	if err != nil {
		m.logger.Error("Failed to encode state for session %s: %v", sessionID, err)
		return
	}
	m.hubService.Broadcast(msg, sessionID, version)
}

// Phase is the process-wide model phase.
func (m *Manager) Phase() state.Phase {
	select {
	case <-m.loader.Done():
		if m.loader.Err() != nil {
			return state.PhaseFailed
		}
		return state.PhaseReady
	default:
		return state.PhaseLoading
	}
}

func (m *Manager) GetLoader() *ai.Loader {
	return m.loader
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.hubService
}

func (m *Manager) GetPreviewStore() *storage.PreviewStore {
	return m.previews
}

func (m *Manager) GetRepository() repository.ClassificationRepository {
	return m.repo
}

// Stop closes every session, drains the workers and releases the replicas.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()

		m.sessionsMu.Lock()
		open := make([]*session.Controller, 0, len(m.sessions))
		for id, c := range m.sessions {
			open = append(open, c)
			delete(m.sessions, id)
		}
		m.sessionsMu.Unlock()
		for _, c := range open {
			c.Close()
		}

		m.queueMu.Lock()
		m.stopped = true
		close(m.processingQueue)
		m.queueMu.Unlock()

		m.wg.Wait()
		if err := m.loader.Close(); err != nil {
			m.logger.Warning("Failed to release model replicas: %v", err)
		}
		m.logger.Info("All processing workers stopped")
	})
}
