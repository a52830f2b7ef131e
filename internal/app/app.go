package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/linechat/linechat-server/internal/auth"
	"github.com/linechat/linechat-server/internal/config"
	"github.com/linechat/linechat-server/internal/relay"
	"github.com/linechat/linechat-server/internal/store"
	"github.com/linechat/linechat-server/internal/store/sqlite"
	"github.com/linechat/linechat-server/internal/transport/web"
)

// App wires together the store, the native relay and the bridge transport.
type App struct {
	relay           *relay.Server
	web             *http.Server
	store           store.Store
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	if cfg.AdminSecret == "" {
		logger.Warn().Msg("admin_secret is empty, /admin is disabled")
	}

	authService := auth.NewService(st)
	registry := relay.NewRegistry()
	dispatcher := relay.NewDispatcher(registry, st, authService, cfg.AdminSecret, cfg.HistoryLimit, logger)

	return &App{
		relay:           relay.NewServer(cfg.ListenAddr, registry, dispatcher, authService, cfg.MessageRateLimit, logger),
		web:             web.NewServer(registry, cfg, logger),
		store:           st,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}, nil
}

// Run starts both listeners and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.relay.Start(runCtx); err != nil {
		a.cleanup()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.web.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()
	a.log.Info().Str("addr", a.web.Addr).Msg("bridge listening")

	select {
	case err := <-serverErr:
		cancel()
		a.relay.Stop()
		a.cleanup()
		return err

	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancelShutdown()

		a.log.Info().Msg("shutting down")
		shutdownErr := a.web.Shutdown(shutdownCtx)

		cancel()
		a.relay.Stop()
		a.cleanup()

		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
