package app

import (
	"context"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/config"
	"github.com/vovakirdan/parley/internal/core"
	"github.com/vovakirdan/parley/internal/directory"
	"github.com/vovakirdan/parley/internal/metrics"
	"github.com/vovakirdan/parley/internal/store"
	"github.com/vovakirdan/parley/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/parley/internal/transport/http"
)

// App wires together storage, the core hub and the transport layer.
type App struct {
	server *stdhttp.Server
	hub    *core.Hub
	store  store.Store
	cfg    *config.Config
	log    *zerolog.Logger
}

// NewAuthService builds the session collaborator over st.
func NewAuthService(cfg *config.Config, st store.AccountStore) *auth.Service {
	return auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	dir, err := directory.Load(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load directory: %w", err)
	}
	logger.Info().Int("identities", len(dir.All())).Msg("directory loaded")

	authService := NewAuthService(cfg, st)
	authService.OnAccountCreated(func(a *store.Account) {
		dir.Put(directory.FromAccount(a))
	})

	m := metrics.New()
	hub := core.NewHub(dir, logger, core.Options{
		GlobalRoom:    cfg.GlobalRoom,
		HistoryLimit:  cfg.HistoryLimit,
		PreviewLength: cfg.PreviewLength,
		RingTimeout:   cfg.RingTimeout,
		OnDrop: func(_ *core.Client, ev *core.Event) {
			m.DroppedEvent(ev.Kind.String())
		},
	})
	server := transporthttp.NewServer(hub, authService, m, cfg, logger)

	return &App{
		server: server,
		hub:    hub,
		store:  st,
		cfg:    cfg,
		log:    logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Str("global_room", a.hub.GlobalRoom()).Msg("starting parley server")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
