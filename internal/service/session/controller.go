// Package session runs the upload/classify state machine for one browser
// session and executes the effects it requests.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"webclassifier/internal/logger"
	"webclassifier/internal/models"
	"webclassifier/internal/service/decode"
	"webclassifier/internal/service/storage"
	"webclassifier/internal/state"
)

// ModelSource reports the outcome of the process-wide model load.
type ModelSource interface {
	Done() <-chan struct{}
	Err() error
}

// Inferrer runs the loaded model on a decoded image.
type Inferrer interface {
	Classify(ctx context.Context, in *decode.Result) ([]models.Prediction, error)
}

// Publisher pushes a session's state to its display surface.
type Publisher interface {
	Publish(session string, version uint64, s state.State)
}

// Recorder stores accepted classifications.
type Recorder interface {
	Insert(c *models.Classification) (int64, error)
}

// Config holds the per-controller settings.
type Config struct {
	State        state.Options
	TickInterval time.Duration
	ModelName    string
}

// Deps are the collaborators of a controller. Recorder and Publisher may be nil.
type Deps struct {
	Model     ModelSource
	Inferrer  Inferrer
	Previews  *storage.PreviewStore
	Recorder  Recorder
	Publisher Publisher
	Logger    *logger.Logger
}

// Controller owns the state of one session. Events are applied under a
// single mutex; effects run after it is released.
type Controller struct {
	id   string
	cfg  Config
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopTicker chan struct{}
	stopOnce   sync.Once

	mu        sync.Mutex
	state     state.State
	version   uint64
	closed    bool
	lastSeen  time.Time
	payloads  map[string][]byte
	durations map[uint64]time.Duration

	pubMu     sync.Mutex
	published uint64
}

// New creates a controller for session id. A controller created while the
// model is still loading starts its progress ticker; one created afterwards
// starts directly in the ready or failed phase.
func New(id string, cfg Config, deps Deps) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		stopTicker: make(chan struct{}),
		lastSeen:   time.Now(),
		payloads:   make(map[string][]byte),
		durations:  make(map[uint64]time.Duration),
	}

	select {
	case <-deps.Model.Done():
		if err := deps.Model.Err(); err != nil {
			c.state = state.Failed(err)
		} else {
			c.state = state.Ready()
		}
		c.stopOnce.Do(func() { close(c.stopTicker) })
	default:
		c.state = state.Initial()
		c.wg.Add(1)
		go c.tick()
	}

	return c
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() state.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// VersionedSnapshot returns the current state and its version. Published
// states carry the same, strictly increasing, version.
func (c *Controller) VersionedSnapshot() (state.State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.version
}

// Touch marks the session as active.
func (c *Controller) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen is the time of the last Touch.
func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Select stores the upload as the session's current image and starts the
// classification pipeline for it. It returns the new state; an empty upload
// returns state.ErrNoFileSelected and changes nothing.
func (c *Controller) Select(name, contentType string, data []byte) (state.State, error) {
	if len(data) == 0 {
		return c.Snapshot(), state.ErrNoFileSelected
	}

	preview, err := c.deps.Previews.Put(c.id, name, contentType, data)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("failed to store preview: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		s := c.state
		c.mu.Unlock()
		c.deps.Previews.Release(preview.ID)
		return s, context.Canceled
	}
	c.payloads[preview.ID] = data
	c.mu.Unlock()

	img := &state.Image{
		ID:          preview.ID,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		PreviewURL:  preview.URL(),
	}
	next := c.dispatch(state.FileSelected{Image: img})
	if next.Image == nil {
		c.deps.Previews.Release(preview.ID)
		return next, context.Canceled
	}
	return next, nil
}

// Close tears the session down: in-flight work is cancelled, the ticker
// stops and the session's previews are released.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.payloads = make(map[string][]byte)
	c.mu.Unlock()

	c.cancel()
	c.stopOnce.Do(func() { close(c.stopTicker) })
	c.wg.Wait()

	if n := c.deps.Previews.ReleaseSession(c.id); n > 0 {
		c.deps.Logger.Info("Session %s closed, released %d preview(s)", c.id, n)
	}
}

// tick drives the cosmetic progress until the model finishes loading.
func (c *Controller) tick() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopTicker:
			return
		case <-c.ctx.Done():
			return
		case <-c.deps.Model.Done():
			c.finishLoad()
			return
		case <-ticker.C:
			select {
			case <-c.deps.Model.Done():
				c.finishLoad()
				return
			default:
			}
			c.dispatch(state.Tick{})
		}
	}
}

func (c *Controller) finishLoad() {
	if err := c.deps.Model.Err(); err != nil {
		c.dispatch(state.ModelFailed{Err: err})
		return
	}
	c.dispatch(state.ModelLoaded{})
}

func (c *Controller) dispatch(e state.Event) state.State {
	c.mu.Lock()
	if c.closed {
		s := c.state
		c.mu.Unlock()
		return s
	}
	next, effects := state.Apply(c.state, e, c.cfg.State)
	c.state = next
	c.version++
	version := c.version
	c.mu.Unlock()

	for _, effect := range effects {
		c.run(effect, next, version)
	}
	return next
}

func (c *Controller) run(effect state.Effect, s state.State, version uint64) {
	switch ef := effect.(type) {
	case state.StopTicker:
		c.stopOnce.Do(func() { close(c.stopTicker) })
	case state.StartDecode:
		c.spawn(func() { c.decode(ef) })
	case state.StartClassify:
		c.spawn(func() { c.classify(ef) })
	case state.ReleaseImage:
		c.deps.Previews.Release(ef.Image.ID)
	case state.Publish:
		c.publish(s, version)
	case state.Record:
		c.record(ef)
	case state.Report:
		c.deps.Logger.Error("Session %s: %v", c.id, ef.Err)
	}
}

// spawn runs f in a goroutine tracked by Close.
func (c *Controller) spawn(f func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		f()
	}()
}

func (c *Controller) decode(ef state.StartDecode) {
	c.mu.Lock()
	data, ok := c.payloads[ef.Image.ID]
	delete(c.payloads, ef.Image.ID)
	c.mu.Unlock()

	if !ok {
		c.dispatch(state.DecodeFailed{Generation: ef.Generation, Err: fmt.Errorf("image %s is no longer available", ef.Image.ID)})
		return
	}

	res, err := decode.Decode(c.ctx, data)
	if err != nil {
		c.dispatch(state.DecodeFailed{Generation: ef.Generation, Err: err})
		return
	}
	// The ticker may not have observed the finished load yet.
	select {
	case <-c.deps.Model.Done():
		c.finishLoad()
	default:
	}
	c.dispatch(state.Decoded{Generation: ef.Generation, Image: ef.Image, Input: res})
}

func (c *Controller) classify(ef state.StartClassify) {
	in, ok := ef.Input.(*decode.Result)
	if !ok {
		c.dispatch(state.ClassifyFailed{Generation: ef.Generation, Err: fmt.Errorf("unexpected input %T", ef.Input)})
		return
	}

	start := time.Now()
	preds, err := c.deps.Inferrer.Classify(c.ctx, in)
	if err != nil {
		c.dispatch(state.ClassifyFailed{Generation: ef.Generation, Err: err})
		return
	}

	c.mu.Lock()
	c.durations[ef.Generation] = time.Since(start)
	c.mu.Unlock()

	c.dispatch(state.Classified{Generation: ef.Generation, Image: ef.Image, Predictions: preds})

	c.mu.Lock()
	delete(c.durations, ef.Generation)
	c.mu.Unlock()
}

// publish drops snapshots older than one already published, so viewers
// never see the state move backwards.
func (c *Controller) publish(s state.State, version uint64) {
	if c.deps.Publisher == nil {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if version <= c.published {
		return
	}
	c.published = version
	c.deps.Publisher.Publish(c.id, version, s)
}

func (c *Controller) record(ef state.Record) {
	if c.deps.Recorder == nil {
		return
	}

	c.mu.Lock()
	elapsed := c.durations[ef.Generation]
	c.mu.Unlock()

	entry := &models.Classification{
		SessionID:   c.id,
		Generation:  ef.Generation,
		Filename:    ef.Image.Name,
		ContentType: ef.Image.ContentType,
		FileSize:    ef.Image.Size,
		ModelName:   c.cfg.ModelName,
		Predictions: ef.Predictions,
		Rendered:    ef.Rendered,
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   time.Now(),
	}
	if _, err := c.deps.Recorder.Insert(entry); err != nil {
		c.deps.Logger.Error("Failed to record classification for session %s: %v", c.id, err)
	}
}
