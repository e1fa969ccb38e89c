package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/karibu-labs/darasa/internal/config"
	"github.com/karibu-labs/darasa/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	h, err := server.NewHandlerWithOptions(server.HandlerOptions{Config: &cfg})
	if err != nil {
		slog.Error("build handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("listening", slog.String("addr", cfg.HTTPAddr), slog.String("env", cfg.Env))
	if err := http.ListenAndServe(cfg.HTTPAddr, h); err != nil {
		slog.Error("serve", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
