package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaipatel248/cric-alert/server/internal/api"
	"github.com/jaipatel248/cric-alert/server/internal/auth"
	"github.com/jaipatel248/cric-alert/server/internal/config"
	"github.com/jaipatel248/cric-alert/server/internal/engine"
	"github.com/jaipatel248/cric-alert/server/internal/interpreter"
	"github.com/jaipatel248/cric-alert/server/internal/metrics"
	"github.com/jaipatel248/cric-alert/server/internal/notify"
	"github.com/jaipatel248/cric-alert/server/internal/provider"
	"github.com/jaipatel248/cric-alert/server/internal/store"
	"github.com/jaipatel248/cric-alert/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults are used when empty")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	// Bootstrap logger until the configured level is known.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := config.LoadEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	slog.Info("cric-alert server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"storage", cfg.Storage.Backend,
		"model", cfg.Interpreter.Model,
		"dedup", cfg.Monitor.Dedup,
		"auth", cfg.Server.Auth.Mode,
	)
	if cfg.Interpreter.Key() == "" {
		slog.Warn("interpreter API key is not set; rule parsing will fail", "env", cfg.Interpreter.KeyEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	interp, err := interpreter.New(ctx, cfg.Interpreter)
	if err != nil {
		slog.Error("failed to build interpreter", "err", err)
		os.Exit(1)
	}
	matches := provider.New(cfg.Provider)

	sinks, closeSinks := buildSinks(cfg.Notify)
	defer closeSinks()

	reg := metrics.New()
	eng := engine.New(st, matches, interp, cfg.Monitor, engine.Options{Sinks: sinks, Metrics: reg})

	if _, err := eng.Restore(ctx); err != nil {
		slog.Error("failed to restore monitors", "err", err)
		os.Exit(1)
	}

	// Hot reload of the monitor tunables.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				eng.Reconfigure(next.Monitor)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			slog.Error("engine stopped", "err", err)
			cancel()
		}
	}()

	// WebSocket hub: one event stream per connected monitor view.
	hub := ws.New(eng, cfg.Server.AllowedOrigins)
	go hub.Run(ctx)

	authCfg := cfg.Server.Auth
	if authCfg.Mode == "apikey" && authCfg.Key() == "" {
		slog.Warn("auth mode is apikey but no key is set; API is open", "env", authCfg.KeyEnv)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.New(api.Options{
		Monitors:       eng,
		Matches:        matches,
		Metrics:        reg,
		Stream:         hub,
		Auth:           auth.APIKey(authCfg.Mode, authCfg.EffectiveHeader(), authCfg.Key()),
		AuthHeader:     authCfg.EffectiveHeader(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("cric-alert server shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	<-engineDone
}

// buildSinks returns the configured outbound notification sinks and a
// function that releases them.
func buildSinks(cfg config.NotifyConfig) ([]notify.Publisher, func()) {
	var sinks []notify.Publisher
	closers := []func(){}

	if len(cfg.Webhooks) > 0 {
		sinks = append(sinks, notify.NewWebhook(cfg.Webhooks))
		slog.Info("webhook notifications enabled", "targets", len(cfg.Webhooks))
	}
	if url := cfg.NATS.URL(); url != "" {
		nc, err := notify.DialNATS(url, cfg.NATS.Prefix)
		if err != nil {
			slog.Error("NATS notifications disabled", "err", err)
		} else {
			sinks = append(sinks, nc)
			closers = append(closers, nc.Close)
			slog.Info("NATS notifications enabled", "prefix", cfg.NATS.Prefix)
		}
	}
	if cfg.Email.Key() != "" {
		sinks = append(sinks, notify.NewEmail(cfg.Email))
		slog.Info("email notifications enabled", "recipients", len(cfg.Email.To))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
