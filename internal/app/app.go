package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/repository"
	"detectserver/internal/repository/sqldb"
	"detectserver/internal/route"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/history"
	"detectserver/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	pool     *ai.Pool
	db       *sqldb.DB
	history  repository.DetectionRepository
	recorder *history.Recorder
	hub      *websocket.HubService
	manager  *service.Manager
}

// NewApp loads configuration and models and wires every service.
// A model that cannot be loaded is fatal.
func NewApp() (*App, error) {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}

	models, err := ai.LoadModels(cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	if a.pool, err = ai.NewPool(models); err != nil {
		a.Close()
		return nil, err
	}
	detector := ai.NewDetectorService(a.pool, log)

	if cfg.HistoryEnabled() {
		if a.db, err = sqldb.New(cfg.HistoryDriver, cfg.HistoryDSN); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		repo := sqldb.NewDetectionRepository(a.db)
		a.history = repo
		a.recorder = history.NewRecorder(repo, log, cfg.HistoryBufferLimit, time.Duration(cfg.HistoryFlushInterval)*time.Second)
		log.Info("History enabled (%s)", cfg.HistoryDriver)
	} else {
		log.Info("History disabled")
	}

	a.hub = websocket.NewHubService(log)
	a.manager = service.NewManager(detector, a.recorder, a.hub, log)

	return a, nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully and
// flushes pending history.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background services
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()
	if a.recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.recorder.Run(ctx)
		}()
	}

	// Setup routes
	router := route.SetupRoutes(a.manager, a.hub, a.history, a.config, a.logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Object detection server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Model: %s (%s, %d instance(s))", a.config.ModelPath, a.config.ModelFormat, a.pool.Size())

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		stop()
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Graceful shutdown failed: %v", err)
	}

	wg.Wait()
	return serveErr
}

// Close releases models, the database and log files.
func (a *App) Close() error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
