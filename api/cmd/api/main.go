package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/app"
	"nutriscan/api/internal/config"
	"nutriscan/api/internal/handle"
	"nutriscan/api/internal/httpserver"
	"nutriscan/api/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error", "text").Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	h := handle.New(a.Orch, a.Profiles, a.History, a.Checks, log.With("component", "http"))
	if err := httpserver.Run(ctx, ":"+cfg.Port, h.Router(), log); err != nil {
		log.Error("http server", "err", err)
	}
}
