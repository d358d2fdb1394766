package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"murojaat/internal/util"
	"murojaat/services/desk/internal/app"
	"murojaat/services/desk/internal/config"
	"murojaat/services/desk/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	shutdownTimeout, err := config.ParseShutdownTimeout(cfg.ShutdownTimeout)
	if err != nil {
		log.Fatalf("failed to parse shutdown timeout: %v", err)
	}

	logger := util.InitLogger("desk", cfg.LogLevel)

	deps, err := wire(cfg)
	if err != nil {
		log.Fatalf("failed to wire dependencies: %v", err)
	}
	defer deps.close()

	appCore, err := app.New(app.Config{
		Store:     deps.store,
		Sessions:  deps.sessions,
		Hasher:    deps.hasher,
		Faculties: cfg.Faculties,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if cfg.SeedDemoData {
		if err := appCore.SeedDemoData(); err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:                appCore,
		LoginLimiter:       deps.loginLimiter,
		RegisterLimiter:    deps.registerLimiter,
		Alerter:            deps.alerter,
		TrustedProxies:     deps.trustedProxies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("desk server listening",
			"addr", addr,
			"store", cfg.StoreBackend,
			"sessions", cfg.SessionBackend,
			"credential_mode", deps.hasher.Mode(),
			"trusted_proxies", deps.trustedProxies.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("desk server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
