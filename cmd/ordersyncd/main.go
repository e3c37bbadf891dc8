package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabshare/ordercore/internal/api"
	"github.com/tabshare/ordercore/internal/auth"
	"github.com/tabshare/ordercore/internal/config"
	"github.com/tabshare/ordercore/internal/models"
	"github.com/tabshare/ordercore/internal/ordersync"
	"github.com/tabshare/ordercore/internal/realtime"
	"github.com/tabshare/ordercore/internal/split"
	"github.com/tabshare/ordercore/internal/storage/sqlite"
	"github.com/tabshare/ordercore/pkg/logging"
)

// eventRelay breaks the construction cycle between the realtime channel
// and the split manager: the channel needs a sink before the manager
// exists, because the manager needs the channel as its subscriber.
type eventRelay struct {
	sink realtime.EventSink
}

func (r *eventRelay) ApplyStatusEvent(userID int64, status models.ParticipantStatus) {
	if r.sink != nil {
		r.sink.ApplyStatusEvent(userID, status)
	}
}

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env", "error", err)
	}
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// With the shared secret available the token can be checked before
	// any backend call, and its claims identify the session user.
	if cfg.JWTSecret != "" {
		claims, err := auth.NewJWTManager(cfg.JWTSecret).Validate(cfg.AuthToken)
		if err != nil {
			slog.Error("Auth token rejected", "error", err)
			os.Exit(1)
		}
		slog.Info("Session authenticated", "user_id", claims.UserID, "name", claims.Name)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	client := api.New(cfg.APIBaseURL, cfg.AuthToken, nil)
	controller := ordersync.New(client, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics endpoint. Failure here should not take the agent down.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("Metrics endpoint starting", "address", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("Metrics endpoint failed", "error", err)
		}
	}()

	// When a split id is configured, load its session and follow the
	// realtime status channel for the life of the process.
	var manager *split.Manager
	if cfg.SplitID != 0 {
		relay := &eventRelay{}
		channel := realtime.New(cfg.WSURL, cfg.AuthToken, relay,
			realtime.WithStateFunc(func(s realtime.State) {
				slog.Info("Status channel state changed", "state", s)
			}))
		manager = split.NewManager(client, store, channel)
		relay.sink = manager

		if err := manager.Load(ctx, cfg.SplitID); err != nil {
			slog.Error("Failed to load split session", "split_id", cfg.SplitID, "error", err)
			os.Exit(1)
		}
		slog.Info("Following split", "split_id", cfg.SplitID)

		go func() {
			if err := channel.Run(ctx, cfg.SplitID); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Status channel stopped", "error", err)
			}
		}()
	}

	// Initial sync, then a steady refresh loop.
	if err := controller.Refresh(ctx, true); err != nil {
		slog.Warn("Initial order sync failed, serving cached orders", "error", err)
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	slog.Info("Order sync running", "interval", cfg.RefreshInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down")
			return
		case <-ticker.C:
			if err := controller.Refresh(ctx, false); err != nil {
				slog.Warn("Order sync failed, keeping cached orders", "error", err)
			}
			if manager != nil {
				// Reconcile against the backend to pick up anything
				// missed while the status channel was reconnecting.
				if err := manager.RefreshStatus(ctx); err != nil {
					slog.Warn("Split status refresh failed", "error", err)
				}
			}
		}
	}
}
