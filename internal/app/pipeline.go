// Package app assembles the scan pipeline from configuration for both
// binaries.
package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lpr-service/internal/config"
	"lpr-service/internal/detect"
	"lpr-service/internal/dispatch"
	"lpr-service/internal/inference"
	"lpr-service/internal/recognize"
	"lpr-service/internal/service"
	"lpr-service/internal/storage"
	"lpr-service/internal/video"
)

// NewUploader returns the S3-compatible store when credentials are present and
// falls back to the local directory otherwise.
func NewUploader(cfg config.StorageConfig, log zerolog.Logger) (storage.Uploader, error) {
	s3Client, err := storage.NewS3Client(storage.S3Config{
		Endpoint:      cfg.Endpoint,
		AccessKey:     cfg.AccessKeyID,
		SecretKey:     cfg.SecretAccessKey,
		Bucket:        cfg.Bucket,
		Region:        cfg.Region,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err == nil {
		log.Info().Str("bucket", cfg.Bucket).Msg("evidence images go to object storage")
		return s3Client, nil
	}
	if !errors.Is(err, storage.ErrNotConfigured) {
		return nil, err
	}
	log.Warn().Str("dir", cfg.LocalDir).Msg("object storage not configured, evidence images are kept on local disk")
	return storage.NewLocalStore(cfg.LocalDir), nil
}

func NewScanService(cfg *config.Config, store dispatch.Store, scans service.ScanStore, log zerolog.Logger) (*service.ScanService, error) {
	limiter := inference.NewLimiter(cfg.Detector.RateLimit)
	vehicles, err := newVehicleDetector(cfg, limiter)
	if err != nil {
		return nil, err
	}

	plates := detect.NewHTTPDetector(inference.NewClient(cfg.Detector.PlateURL, inference.Options{
		Timeout:     cfg.Detector.Timeout,
		Limiter:     limiter,
		JPEGQuality: cfg.Scan.JPEGQuality,
	}))
	recognizer := recognize.NewHTTPRecognizer(inference.NewClient(cfg.Recognizer.URL, inference.Options{
		Timeout:     cfg.Recognizer.Timeout,
		Limiter:     limiter,
		JPEGQuality: cfg.Scan.JPEGQuality,
	}), cfg.Recognizer.Languages)

	var dispatcher service.ResultDispatcher
	if store != nil {
		dispatcher = dispatch.NewDispatcher(store, cfg.Dispatch.Backend, cfg.Scan.JPEGQuality, log)
	}

	return service.NewScanService(service.Pipeline{
		Vehicles:   vehicles,
		Plates:     plates,
		Recognizer: recognizer,
		Dispatcher: dispatcher,
		Scans:      scans,
		SortTokens: cfg.Scan.SortTokens,
		Open:       video.OpenOptions{FFmpegPath: cfg.Scan.FFmpegPath},
	}, log), nil
}

func newVehicleDetector(cfg *config.Config, limiter *rate.Limiter) (detect.Detector, error) {
	switch cfg.Detector.VehicleBackend {
	case "rekognition":
		d, err := detect.NewRekognitionDetector(detect.RekognitionConfig{
			Region:      cfg.AWS.Region,
			AccessKey:   cfg.AWS.AccessKeyID,
			SecretKey:   cfg.AWS.SecretAccessKey,
			Labels:      cfg.Detector.VehicleLabels,
			JPEGQuality: cfg.Scan.JPEGQuality,
		})
		if err != nil {
			return nil, fmt.Errorf("rekognition vehicle detector: %w", err)
		}
		return d, nil
	case "http", "":
		return detect.NewHTTPDetector(inference.NewClient(cfg.Detector.VehicleURL, inference.Options{
			Timeout:     cfg.Detector.Timeout,
			Limiter:     limiter,
			JPEGQuality: cfg.Scan.JPEGQuality,
		})), nil
	default:
		return nil, fmt.Errorf("unknown vehicle detector backend %q", cfg.Detector.VehicleBackend)
	}
}
