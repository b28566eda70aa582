package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lmittmann/tint"

	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/relay"
)

func main() {
	configDir := flag.String("config", "./config", "directory with configuration files")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	cfg, err := config.NewManager(*configDir)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	server := relay.NewServer(cfg, app)
	defer server.Close()

	server.SetupRoutes()
	app.Static("/", "./asset")

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down")
		_ = app.Shutdown()
	}()

	security := cfg.Get().Security
	addr := ":" + strconv.Itoa(cfg.Get().Server.Port)

	if security.TLSCrtFile != nil && security.TLSKeyFile != nil {
		slog.Info("running TLS server", "addr", addr)
		err = app.ListenTLS(addr, *security.TLSCrtFile, *security.TLSKeyFile)
	} else {
		slog.Info("running server", "addr", addr)
		err = app.Listen(addr)
	}
	if err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
