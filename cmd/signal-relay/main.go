package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/tandemcall/signal-relay/internal/bus"
	"github.com/tandemcall/signal-relay/internal/config"
	"github.com/tandemcall/signal-relay/internal/httpserver"
	"github.com/tandemcall/signal-relay/internal/metrics"
	"github.com/tandemcall/signal-relay/internal/room"
	"github.com/tandemcall/signal-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting signal-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"max_signaling_message_bytes", cfg.MaxMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxMessagesPerSecond,
		"max_room_members", cfg.MaxRoomMembers,
		"redis_bus_enabled", cfg.RedisAddr != "",
		"ice_servers", len(cfg.ICEServers),
	)

	m := metrics.New()
	directory := room.NewDirectory()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sigCfg := signaling.Config{
		Directory: directory,
		Metrics:   m,
		Logger:    logger,

		AllowedOrigins: cfg.AllowedOrigins,

		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		IdleTimeout:          cfg.WSIdleTimeout,
		PingInterval:         cfg.WSPingInterval,
		MaxRoomMembers:       cfg.MaxRoomMembers,
	}

	var rb *bus.RedisBus
	if cfg.RedisAddr != "" {
		rb, err = bus.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, logger, m)
		if err != nil {
			logger.Error("failed to connect to redis bus", "addr", cfg.RedisAddr, "err", err)
			os.Exit(2)
		}
		defer rb.Close()
		sigCfg.Bus = rb
		logger.Info("cross-instance bus enabled", "addr", cfg.RedisAddr, "instance_id", rb.InstanceID())
	}

	sig := signaling.NewServer(sigCfg)
	if rb != nil {
		go rb.Run(ctx, sig.HandleRemoteFrame)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	sig.RegisterRoutes(srv.Mux())
	srv.Mux().Handle("GET /metrics", m.Handler())

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the
	// Go build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
