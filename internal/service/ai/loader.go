package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"webclassifier/internal/logger"
)

// Loader acquires the model replicas exactly once per process. Callers wait
// on Done and then read Models or Err.
type Loader struct {
	factory  Factory
	replicas int
	logger   *logger.Logger

	once    sync.Once
	done    chan struct{}
	models  []Model
	err     error
	elapsed time.Duration
}

// NewLoader prepares a loader for the given number of replicas; nothing is
// loaded until Start.
func NewLoader(factory Factory, replicas int, logger *logger.Logger) *Loader {
	if replicas < 1 {
		replicas = 1
	}
	return &Loader{
		factory:  factory,
		replicas: replicas,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the load in the background. Further calls do nothing.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		go l.load(ctx)
	})
}

func (l *Loader) load(ctx context.Context) {
	defer close(l.done)

	start := time.Now()
	l.logger.Info("Model loading (%d replica(s))", l.replicas)

	loaded := make([]Model, 0, l.replicas)
	for i := 0; i < l.replicas; i++ {
		if err := ctx.Err(); err != nil {
			l.fail(loaded, fmt.Errorf("model load cancelled: %w", err))
			return
		}
		m, err := l.factory()
		if err != nil {
			l.fail(loaded, fmt.Errorf("failed to load model replica %d: %w", i, err))
			return
		}
		loaded = append(loaded, m)
	}

	l.models = loaded
	l.elapsed = time.Since(start)
	l.logger.Info("Model loaded in %s", l.elapsed)
}

func (l *Loader) fail(loaded []Model, err error) {
	for _, m := range loaded {
		if cerr := m.Close(); cerr != nil {
			l.logger.Warning("Failed to close model replica: %v", cerr)
		}
	}
	l.err = err
	l.logger.Error("Model load failed: %v", err)
}

// Done is closed once the load has finished, successfully or not.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Ready reports whether the load finished successfully.
func (l *Loader) Ready() bool {
	select {
	case <-l.done:
		return l.err == nil
	default:
		return false
	}
}

// Err returns the load error; nil while loading or after success.
func (l *Loader) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Models returns the loaded replicas, or nil if not (yet) loaded.
func (l *Loader) Models() []Model {
	select {
	case <-l.done:
		return l.models
	default:
		return nil
	}
}

// Wait blocks until the load finishes or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases every replica. It must only be called after the workers
// using them have stopped.
func (l *Loader) Close() error {
	var errs []error
	for _, m := range l.Models() {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
