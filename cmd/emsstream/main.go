// emsstream logs in to an EMS server over a raw transport and prints every
// decoded frame to the console. It bypasses the session manager, so frames
// for unknown devices and repeated auth responses are shown as received.
// Usage: go run ./cmd/emsstream -config configs/emsclient.yaml [-password secret]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rickgao/ems-client/internal/buffer"
	"github.com/rickgao/ems-client/internal/config"
	"github.com/rickgao/ems-client/internal/connection"
	"github.com/rickgao/ems-client/internal/credential"
	"github.com/rickgao/ems-client/internal/protocol"
)

func main() {
	configPath := flag.String("config", "configs/emsclient.yaml", "path to config file")
	password := flag.String("password", "", "log in with this password instead of the stored token")
	subscribe := flag.Bool("subscribe", true, "subscribe to telemetry after connecting")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	login, err := loginFrame(ctx, cfg, *password)
	if err != nil {
		logger.Error("no credentials", "error", err)
		os.Exit(1)
	}

	client := connection.NewClient(connection.ClientConfig{
		URL:          cfg.Server.URL,
		PingInterval: cfg.Session.PingInterval,
		PingTimeout:  cfg.Session.PingTimeout,
		WriteTimeout: cfg.Session.WriteTimeout,
		BufferSize:   cfg.Session.BufferSize,
	}, logger)

	logger.Info("connecting", "url", cfg.Server.URL)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := send(client, login); err != nil {
		logger.Error("failed to send login", "error", err)
		os.Exit(1)
	}
	if *subscribe {
		if err := send(client, protocol.SubscribeMsg(cfg.Server.SubscribeTag)); err != nil {
			logger.Warn("failed to subscribe", "error", err)
		}
	}

	frames := buffer.New[connection.TimestampedMessage](cfg.Session.BufferSize)
	go printFrames(frames, *verbose, logger)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	logger.Info("streaming started - press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			frames.Close()
			logger.Info("shutdown complete")
			return
		case msg := <-client.Messages():
			frames.Push(msg)
		case err := <-client.Errors():
			frames.Close()
			logger.Error("connection ended", "error", err)
			os.Exit(1)
		case <-ticker.C:
			stats := frames.Stats()
			logger.Info("stats",
				"frames", stats.Pushed,
				"printed", stats.Popped,
				"queued", stats.Depth,
			)
		}
	}
}

func loginFrame(ctx context.Context, cfg *config.ClientConfig, password string) (protocol.Envelope, error) {
	if password != "" {
		return protocol.PasswordLogin(password), nil
	}

	var db credential.DB
	if cfg.Credentials.Backend == config.BackendPostgres {
		return protocol.Envelope{}, fmt.Errorf("postgres token store not supported here, use -password")
	}
	store, err := credential.New(cfg.Credentials, db)
	if err != nil {
		return protocol.Envelope{}, err
	}
	token, ok, err := store.Token(ctx, cfg.Server.Name)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if !ok {
		return protocol.Envelope{}, fmt.Errorf("no stored token for %q", cfg.Server.Name)
	}
	return protocol.TokenLogin(token), nil
}

func send(c connection.Client, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func printFrames(frames *buffer.Queue[connection.TimestampedMessage], verbose bool, logger *slog.Logger) {
	for {
		msg, ok := frames.Pop()
		if !ok {
			return
		}

		if verbose {
			var pretty any
			if err := json.Unmarshal(msg.Data, &pretty); err == nil {
				data, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Printf("[FRAME %s] %s\n", msg.ReceivedAt.Format(time.TimeOnly), data)
				continue
			}
		}

		env, err := protocol.Decode(msg.Data)
		if err != nil {
			logger.Warn("undecodable frame", "error", err, "size", len(msg.Data))
			continue
		}

		if len(env.Skipped) > 0 {
			fmt.Printf("[SKIPPED] %v\n", env.Skipped)
		}
		if a := env.Authenticate; a != nil {
			fmt.Printf("[AUTH] token=%v username=%s\n", a.HasToken(), deref(a.Username))
		}
		if c := env.Config; c != nil {
			fmt.Printf("[CONFIG] devices=%d persistences=%d\n", len(c.Devices), len(c.Persistence))
			for _, id := range slices.Sorted(maps.Keys(c.Devices)) {
				fmt.Printf("  %s %v\n", id, c.Devices[id])
			}
		}
		for _, id := range slices.Sorted(maps.Keys(env.Data)) {
			fmt.Printf("[DATA] device=%s channels=%d\n", id, len(env.Data[id]))
		}
		if n := env.Notification; n != nil {
			fmt.Printf("[NOTIFICATION] %s: %s\n", n.Type, n.Message)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
