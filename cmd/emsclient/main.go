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
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ems-client/internal/config"
	"github.com/rickgao/ems-client/internal/connection"
	"github.com/rickgao/ems-client/internal/credential"
	"github.com/rickgao/ems-client/internal/database"
	"github.com/rickgao/ems-client/internal/notify"
	"github.com/rickgao/ems-client/internal/recorder"
	"github.com/rickgao/ems-client/internal/session"
	"github.com/rickgao/ems-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/emsclient.yaml", "path to config file (.yaml or .toml)")
	password := flag.String("password", "", "log in with this password instead of the stored token")
	subscribe := flag.Bool("subscribe", false, "subscribe to telemetry after login")
	logout := flag.Bool("logout", false, "forget the stored token and exit")
	noColor := flag.Bool("no-color", false, "disable coloured console output")
	flag.Parse()

	if *noColor {
		notify.DisableColor()
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting ems client",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"server", cfg.Server.URL,
	)

	if err := run(cfg, *password, *subscribe, *logout, logger); err != nil {
		logger.Error("ems client failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ems client stopped")
}

func run(cfg *config.ClientConfig, password string, subscribe, logout bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		p, err := database.Connect(ctx, cfg.Database, "ems-client/"+cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer p.Close()
		pool = p
		logger.Info("database connected")
	}

	store, err := newStore(ctx, cfg.Credentials, pool)
	if err != nil {
		return err
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec = recorder.New(cfg.Recorder, pool, logger.With("component", "recorder"))
		if err := rec.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := rec.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			rec.Stop(stopCtx)
		}()
	}

	console := notify.NewConsoleSink(nil)

	opts := session.Options{
		Name:          cfg.Server.Name,
		URL:           cfg.Server.URL,
		RewriteHost:   cfg.Server.RewriteHost,
		AuthTimeout:   cfg.Session.AuthTimeout,
		EventBuffer:   cfg.Session.EventBuffer,
		SubscribeTag:  cfg.Server.SubscribeTag,
		AutoSubscribe: cfg.Server.AutoSubscribe || subscribe,
		Reconnect: session.ReconnectPolicy{
			Enabled:   cfg.Session.Reconnect.Enabled,
			BaseDelay: cfg.Session.Reconnect.BaseDelay,
			MaxDelay:  cfg.Session.Reconnect.MaxDelay,
		},
		Dialer: connection.WebSocketDialer{
			Config: connection.ClientConfig{
				PingInterval: cfg.Session.PingInterval,
				PingTimeout:  cfg.Session.PingTimeout,
				WriteTimeout: cfg.Session.WriteTimeout,
				BufferSize:   cfg.Session.BufferSize,
			},
			Logger: logger.With("component", "transport"),
		},
		Store:  store,
		Sink:   notify.Multi(console, notify.NewLogSink(logger.With("component", "server"))),
		Logger: logger.With("component", "session"),
	}
	if rec != nil {
		opts.Telemetry = rec
	}

	mgr, err := session.New(opts)
	if err != nil {
		return err
	}

	if logout {
		mgr.Close()
		ev := <-mgr.Events()
		console.Deliver(ev.Notification)
		return nil
	}

	if password != "" {
		mgr.ConnectWithCredential(ctx, password)
	} else if !mgr.ConnectWithStoredToken(ctx) {
		return fmt.Errorf("no stored token for %q, run with -password", cfg.Server.Name)
	}

	var health healthDeps
	health.session = mgr
	if pool != nil {
		health.db = pool
	}
	if rec != nil {
		health.recorder = rec
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		pumpEvents(gctx, mgr, console, logger)
		return nil
	})

	logger.Info("ems client running",
		"connection", cfg.Server.Name,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	return g.Wait()
}

// pumpEvents prints status events until ctx ends.
func pumpEvents(ctx context.Context, mgr *session.Manager, sink notify.Sink, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-mgr.Events():
			switch ev.Type {
			case session.EventStatus:
				sink.Deliver(ev.Notification)
			case session.EventConfigChanged:
				st := mgr.State()
				logger.Info("config changed",
					"attempt", ev.Attempt,
					"devices", strings.Join(st.Devices(), ","),
				)
			}
		}
	}
}

// newStore builds the credential store. The pool is only used by the
// postgres backend.
func newStore(ctx context.Context, cfg config.CredentialsConfig, pool *pgxpool.Pool) (credential.Store, error) {
	var db credential.DB
	if pool != nil {
		db = pool
	}

	store, err := credential.New(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	if pg, ok := store.(*credential.PostgresStore); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// newLogger builds the slog handler selected by cfg.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
