// Command syncd runs the marketplace page core: the messaging poller, the
// forum and auth components, and the HTTP/WebSocket surface the page talks to.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/authflow"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/cache"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/config"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/featureflags"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/forum"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/messaging"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/server"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogging(cfg.Env, cfg.LogLevel)
	logger := observability.GlobalLogger

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:  "bundlebooth-syncd",
		Environment:  cfg.Env,
		Enabled:      cfg.TracingEnabled,
		Exporter:     cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplerRatio: cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := cache.InitRedis(cfg.RedisURL)
	bus := events.NewRedisBus(rdb, cfg.EventScope)
	if err := bus.Start(ctx); err != nil {
		logger.Warn("event fan-out unavailable, delivering locally", "error", err)
	}

	store := session.NewStore()
	seedSession(store, cfg)

	client := api.NewClient(cfg.APIBaseURL, store, api.WithTimeout(cfg.APITimeout()))
	flags := featureflags.NewManager(cfg.FeatureFlags)

	role, ok := messaging.ParseRole(cfg.MessageRole)
	if !ok {
		role = messaging.RoleClient
	}
	poller := messaging.NewPoller(client, store,
		messaging.WithIntervals(messaging.Intervals{Closed: cfg.PollClosedInterval(), Open: cfg.PollOpenInterval()}),
		messaging.WithRole(role),
		messaging.WithBus(bus),
	)
	detach := poller.Attach(bus)
	defer detach()
	store.OnChange(func(u *models.User) { poller.SessionChanged(ctx, u) })

	srv := server.New(cfg, server.Deps{
		Session:  store,
		Bus:      bus,
		Poller:   poller,
		Help:     messaging.NewHelpCenter(client, store, poller),
		Forum:    forum.NewService(client, store),
		Voter:    forum.NewVoter(client, store, bus),
		Renderer: forum.NewRenderer(flags),
		Auth:     authflow.NewFlow(client, store, bus, cfg.VendorSetupDelay()),
		Flags:    flags,
		Redis:    rdb,
	})
	srv.App()

	if err := events.Emit(ctx, bus, events.SharedComponentsReady, nil); err != nil {
		logger.Warn("failed to announce shared components", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("syncd stopped", "error", err)
		os.Exit(1)
	}
}

// seedSession signs the process in from SESSION_TOKEN, or as SESSION_USER_ID
// when only an id is configured.
func seedSession(store *session.Store, cfg *config.Config) {
	switch {
	case cfg.SessionToken != "":
		user, err := session.UserFromToken(cfg.SessionToken)
		if err != nil {
			observability.GlobalLogger.Warn("ignoring SESSION_TOKEN", "error", err)
			return
		}
		store.Set(cfg.SessionToken, user)
	case cfg.SessionUserID != "":
		store.Set("", &models.User{ID: models.ID(cfg.SessionUserID)})
	}
}
