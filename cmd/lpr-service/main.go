package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lpr-service/internal/app"
	"lpr-service/internal/auth"
	"lpr-service/internal/config"
	"lpr-service/internal/db"
	"lpr-service/internal/dispatch"
	httphandler "lpr-service/internal/http"
	"lpr-service/internal/http/middleware"
	"lpr-service/internal/logger"
	"lpr-service/internal/repository"
	"lpr-service/internal/service"
)

func main() {
	cfg, err := config.Load(nil)
	if err == nil {
		err = cfg.ValidateServer()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
	})

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	uploader, err := app.NewUploader(cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	vehicleRepo := repository.NewVehicleRepository(database)
	scanRepo := repository.NewScanRepository(database)
	store := dispatch.NewDirectStore(uploader, vehicleRepo)

	vehicleService := service.NewVehicleService(store, vehicleRepo, appLogger)
	scanService, err := app.NewScanService(cfg, store, scanRepo, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to build scan pipeline")
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(vehicleService, scanService, cfg, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting LPR service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}
