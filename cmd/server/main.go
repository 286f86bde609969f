package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/adpulse/internal/api"
	"github.com/ignite/adpulse/internal/config"
	"github.com/ignite/adpulse/internal/pkg/logger"
	"github.com/ignite/adpulse/internal/repository/postgres"
	"github.com/ignite/adpulse/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	postgres.EnsureSchema(db)

	jobRepo := postgres.NewJobRepo(db)
	anomalyRepo := postgres.NewAnomalyRepo(db)
	tracker := worker.NewTracker(jobRepo)

	handlers := api.NewHandlers(jobRepo, anomalyRepo, tracker)
	router := api.SetupRoutes(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err.Error())
	}
	logger.Info("api server stopped")
}
