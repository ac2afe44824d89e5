package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"webclassifier/internal/config"
	"webclassifier/internal/logger"
	"webclassifier/internal/repository"
	"webclassifier/internal/repository/sqlite"
	"webclassifier/internal/route"
	"webclassifier/internal/service"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/ai/onnx"
	"webclassifier/internal/service/storage"
	"webclassifier/internal/service/websocket"
)

const (
	previewSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

type App struct {
	config       *config.Config
	logger       *logger.Logger
	db           *sqlite.DB
	previewStore *storage.PreviewStore
	hubService   *websocket.HubService
	manager      *service.Manager
}

// NewApp loads the configuration and wires every service. The model is not
// loaded until Run.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var repo repository.ClassificationRepository
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Error("History disabled, failed to open database %s: %v", cfg.DBPath, err)
	} else {
		repo = sqlite.NewClassificationRepository(db)
	}

	loader := ai.NewLoader(NewModelFactory(cfg, log), cfg.InferenceWorkers, log)
	previews := storage.NewPreviewStore(cfg.PreviewBudgetBytes(), log)
	hub := websocket.NewHubService(log)

	mng := service.NewManager(loader, previews, hub, repo, cfg, log)

	return &App{
		config:       cfg,
		logger:       log,
		db:           db,
		previewStore: previews,
		hubService:   hub,
		manager:      mng,
	}, nil
}

// Run serves HTTP until ctx is done, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	// Start background services
	go a.hubService.Run(ctx)
	if a.config.SessionTTL > 0 {
		go a.previewStore.Run(ctx, previewSweepInterval, a.config.SessionTTL, func(session string) bool {
			_, ok := a.manager.Lookup(session)
			return ok
		})
	}
	a.manager.Start()

	// Setup routes
	router := route.SetupRoutes(a.manager, a.config, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Image classifier listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Model: %s (%s backend, %d worker(s), race policy %s)",
		a.config.ModelPath, a.config.ModelBackend, a.config.InferenceWorkers, a.config.RacePolicy)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (a *App) close() {
	a.manager.Stop()
	if a.config.ModelBackend == config.BackendONNX {
		onnx.Shutdown()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Failed to close database: %v", err)
		}
	}
	_ = a.logger.Sync()
}
