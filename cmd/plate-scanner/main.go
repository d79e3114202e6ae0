package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"lpr-service/internal/app"
	"lpr-service/internal/config"
	"lpr-service/internal/consensus"
	"lpr-service/internal/db"
	"lpr-service/internal/dispatch"
	"lpr-service/internal/logger"
	"lpr-service/internal/repository"
	"lpr-service/internal/video"
)

func main() {
	flags := pflag.NewFlagSet("plate-scanner", pflag.ExitOnError)
	flags.String("source", "", "video file, stream URL or directory of frames")
	flags.Int("interval", video.DefaultFrameInterval, "process every Nth frame")
	flags.String("backend", "", "persistence backend: db or api")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err == nil {
		err = cfg.ValidateScanner()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, log))
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	store, err := newStore(cfg, log)
	if err != nil {
		// the scan still runs; the consensus is reported as not persisted
		log.Error().Err(err).Str("backend", cfg.Dispatch.Backend).Msg("failed to initialize persistence backend")
		initErr := err
		store = dispatch.StoreFunc(func(context.Context, string, []byte) (string, error) {
			return "", initErr
		})
	}

	scanner, err := app.NewScanService(cfg, store, nil, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build scan pipeline")
		return 1
	}

	report, err := scanner.ScanSource(ctx, cfg.Scan.Source, cfg.Scan.FrameInterval)
	switch {
	case errors.Is(err, video.ErrSourceUnavailable):
		log.Error().Err(err).Msg("cannot open video source")
		return 1
	case errors.Is(err, consensus.ErrNoPlateDetected):
		fmt.Println("no plate detected")
		return 0
	case err != nil:
		log.Error().Err(err).Msg("scan failed")
		return 1
	}

	res := report.Result
	fmt.Printf("plate=%s occurrences=%d confidence=%.3f frame=%d\n",
		res.Plate, res.Occurrences, res.Confidence, res.Evidence.Index)
	if report.DeliveryError != "" {
		log.Error().Str("error", report.DeliveryError).Msg("consensus was not persisted")
	} else if report.ImageRef != "" {
		fmt.Printf("image=%s\n", report.ImageRef)
	}
	return 0
}

func newStore(cfg *config.Config, log zerolog.Logger) (dispatch.Store, error) {
	if cfg.Dispatch.Backend == "api" {
		return dispatch.NewAPIStore(cfg.Dispatch.APIURL, cfg.Dispatch.Timeout), nil
	}

	database, err := db.New(cfg, log)
	if err != nil {
		return nil, err
	}
	uploader, err := app.NewUploader(cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	return dispatch.NewDirectStore(uploader, repository.NewVehicleRepository(database)), nil
}
