// Package app wires all components together and owns startup and shutdown
// order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"classrelay/internal/api"
	"classrelay/internal/auth"
	"classrelay/internal/classroom"
	"classrelay/internal/config"
	"classrelay/internal/database"
	"classrelay/internal/fanout"
	"classrelay/internal/handlers"
	"classrelay/internal/logging"
	"classrelay/internal/router"
	"classrelay/internal/session"
	"classrelay/internal/speech"
	ws "classrelay/internal/websocket"
	dbconfig "classrelay/pkg/database"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

// Application holds every long-lived component. Construction wires, Run
// starts, Shutdown stops in reverse order.
type Application struct {
	cfg *config.Config

	repository *database.Manager
	classrooms *classroom.Service
	registry   *ws.Registry
	lifecycle  *session.Lifecycle
	limiter    *router.RateLimiter
	health     *ws.HealthMonitor
	httpServer *http.Server

	stopCh chan struct{}
	log    zerolog.Logger
}

// New builds the full application from configuration.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.WithComponent("app")

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path
	repository, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	classrooms := classroom.NewService(cfg.Session.ClassroomCodeExpiration, cfg.Session.ClassroomCodeCleanupInterval)
	registry := ws.NewRegistry()
	writer := ws.NewResponseWriter()
	lifecycle := session.NewLifecycle(repository, registry, classrooms, writer, cfg.Session.StudentDrainGrace)

	pipeline := speech.NewAdapter(cfg.Speech.Endpoint, cfg.Speech.APIKey, cfg.Speech.Timeout)
	fanoutSvc := fanout.NewService(pipeline, registry, writer, repository, cfg.Speech.Timeout)

	limiter := router.NewRateLimiter(cfg.WebSocket.RateLimitPerMinute)
	frameRouter := router.New(lifecycle, limiter, writer)

	authSvc := auth.NewService(repository, cfg.Auth.TokenTTL)

	registerHandler := handlers.NewRegisterHandler(lifecycle, classrooms, registry, writer, authSvc)
	heartbeat := handlers.NewHeartbeatHandler(writer)
	frameRouter.MustRegister(types.MessageTypeRegister, registerHandler)
	frameRouter.MustRegister(types.MessageTypeTranscription, handlers.NewTranscriptionHandler(fanoutSvc, lifecycle, repository))
	frameRouter.MustRegister(types.MessageTypeAudio, handlers.NewAudioHandler(lifecycle))
	frameRouter.MustRegister(types.MessageTypeTTSRequest, handlers.NewTTSHandler(pipeline, writer))
	frameRouter.MustRegister(types.MessageTypeSettings, handlers.NewSettingsHandler(registry, writer))
	frameRouter.MustRegister(types.MessageTypePing, router.HandlerFunc(heartbeat.HandlePing))
	frameRouter.MustRegister(types.MessageTypePong, router.HandlerFunc(heartbeat.HandlePong))

	wsHandler := ws.NewHandler(registry, classrooms, frameRouter,
		ws.CloseObservers{frameRouter, lifecycle}, writer,
		cfg.WebSocket.ReadTimeout, cfg.WebSocket.BufferSize)

	apiServer := api.NewServer(authSvc, repository, registry, wsHandler.ServeWS)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		repository: repository,
		classrooms: classrooms,
		registry:   registry,
		lifecycle:  lifecycle,
		limiter:    limiter,
		health:     ws.NewHealthMonitor(registry, cfg.Session.HealthCheckInterval),
		httpServer: httpServer,
		stopCh:     make(chan struct{}),
		log:        log,
	}, nil
}

// Run starts background services and serves HTTP until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.lifecycle.Resume(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to resume sessions")
	}

	a.classrooms.Start()
	a.health.Start()
	go a.limiterCleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.httpServer.Addr).Msg("server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown stops components in reverse dependency order.
func (a *Application) Shutdown() error {
	a.log.Info().Msg("shutting down")
	close(a.stopCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown incomplete")
	}

	a.health.Stop()
	a.classrooms.Stop()
	a.lifecycle.Close()

	for _, p := range a.registry.All() {
		_ = p.Close()
	}

	if err := a.repository.Close(); err != nil {
		return fmt.Errorf("failed to close repository: %w", err)
	}
	a.log.Info().Msg("shutdown complete")
	return nil
}

// Repository exposes the store for diagnostics and tests.
func (a *Application) Repository() interfaces.SessionRepository {
	return a.repository
}

func (a *Application) limiterCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.limiter.Cleanup()
		case <-a.stopCh:
			return
		}
	}
}
