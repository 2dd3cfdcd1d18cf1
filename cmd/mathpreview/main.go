// mathpreview serves the math-text pipeline over HTTP for browser previews.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/config"
	"latex-mathedit/internal/httpapi"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/render"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	addr := flag.String("addr", "", "Listen address (overrides config and MATHEDIT_PREVIEW_ADDR)")
	flag.Parse()

	cfg, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		LogFilePath:   "latex-mathedit-preview.log",
		Level:         cfg.GetLogLevel(),
		EnableConsole: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
	}
	defer logger.Close()

	deps := httpapi.Deps{Renderer: render.NewRenderer()}
	if assistant, err := assist.NewFromConfig(cfg); err == nil {
		deps.Assistant = assistant
	} else {
		logger.Info("assistant disabled", logger.Err(err))
	}

	listen := cfg.GetPreviewAddr()
	if *addr != "" {
		listen = *addr
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("preview listening", logger.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("preview stopped")
}
