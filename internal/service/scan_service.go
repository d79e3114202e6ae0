package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lpr-service/internal/consensus"
	"lpr-service/internal/detect"
	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/imaging"
	"lpr-service/internal/recognize"
	"lpr-service/internal/repository"
	"lpr-service/internal/utils"
	"lpr-service/internal/video"
)

type ResultDispatcher interface {
	Dispatch(ctx context.Context, result lpr.ConsensusResult) (string, error)
}

type ScanStore interface {
	Create(ctx context.Context, report *lpr.ScanReport) error
	Get(ctx context.Context, id uuid.UUID) (*repository.PlateScan, error)
	List(ctx context.Context, limit, offset int) ([]repository.PlateScan, error)
}

type Pipeline struct {
	Vehicles   detect.Detector
	Plates     detect.Detector
	Recognizer recognize.Recognizer
	Dispatcher ResultDispatcher
	// Scans is optional; when set every finished scan is recorded.
	Scans      ScanStore
	SortTokens bool
	Open       video.OpenOptions
}

// ScanService runs the vehicle -> plate -> text cascade over sampled frames
// and reduces the accepted readings to one consensus plate.
type ScanService struct {
	vehicles   detect.Detector
	plates     detect.Detector
	recognizer recognize.Recognizer
	dispatcher ResultDispatcher
	scans      ScanStore
	sortTokens bool
	open       video.OpenOptions
	log        zerolog.Logger
}

func NewScanService(p Pipeline, log zerolog.Logger) *ScanService {
	return &ScanService{
		vehicles:   p.Vehicles,
		plates:     p.Plates,
		recognizer: p.Recognizer,
		dispatcher: p.Dispatcher,
		scans:      p.Scans,
		sortTokens: p.SortTokens,
		open:       p.Open,
		log:        log.With().Str("component", "scan").Logger(),
	}
}

// ScanSource opens uri and scans it. An open failure is returned wrapping
// video.ErrSourceUnavailable together with a failed report.
func (s *ScanService) ScanSource(ctx context.Context, uri string, interval int) (*lpr.ScanReport, error) {
	started := time.Now()
	name := utils.RedactURL(uri)
	src, err := video.Open(ctx, uri, s.open)
	if err != nil {
		report := &lpr.ScanReport{
			ID:         uuid.New(),
			Source:     name,
			Interval:   interval,
			Status:     lpr.ScanStatusFailed,
			Candidates: []lpr.Candidate{},
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		s.log.Error().Err(err).Str("source", name).Msg("failed to open video source")
		s.record(ctx, report)
		return report, err
	}

	return s.scan(ctx, src, name, interval)
}

// Scan consumes src, which it closes, and returns the scan report. The error
// is consensus.ErrNoPlateDetected when no reading was accepted; nothing is
// dispatched in that case. A dispatch failure only sets DeliveryError.
func (s *ScanService) Scan(ctx context.Context, src video.Source, interval int) (*lpr.ScanReport, error) {
	return s.scan(ctx, src, "", interval)
}

func (s *ScanService) scan(ctx context.Context, src video.Source, name string, interval int) (*lpr.ScanReport, error) {
	if interval < 1 {
		interval = video.DefaultFrameInterval
	}
	report := &lpr.ScanReport{
		ID:        uuid.New(),
		Source:    name,
		Interval:  interval,
		StartedAt: time.Now(),
	}

	sampler := video.NewSampler(src, interval, s.log)
	agg := consensus.NewAggregator()

	for frame := range sampler.Frames(ctx) {
		for _, obs := range s.ProcessFrame(ctx, frame) {
			agg.Record(obs.Plate, obs.Frame, obs.Confidence)
			report.Observations++
		}
	}

	stats := sampler.Stats()
	report.FramesRead = stats.FramesRead
	report.FramesProcessed = stats.FramesYielded
	report.Candidates = agg.Candidates()
	if err := sampler.Err(); err != nil && ctx.Err() == nil {
		report.ReadError = err.Error()
	}

	if err := ctx.Err(); err != nil {
		report.Status = lpr.ScanStatusFailed
		report.FinishedAt = time.Now()
		s.record(context.WithoutCancel(ctx), report)
		return report, fmt.Errorf("scan interrupted: %w", err)
	}

	result, err := agg.Winner()
	if err != nil {
		report.Status = lpr.ScanStatusNoPlate
		report.FinishedAt = time.Now()
		s.log.Info().
			Int64("frames_read", report.FramesRead).
			Int64("frames_processed", report.FramesProcessed).
			Msg("no plate detected")
		s.record(ctx, report)
		return report, err
	}

	report.Result = &result
	report.Status = lpr.ScanStatusCompleted
	s.log.Info().
		Str("plate", result.Plate).
		Int("occurrences", result.Occurrences).
		Float64("confidence", result.Confidence).
		Int64("frame", result.Evidence.Index).
		Int("candidates", len(report.Candidates)).
		Msg("consensus selected")

	if s.dispatcher != nil {
		ref, err := s.dispatcher.Dispatch(ctx, result)
		if err != nil {
			report.DeliveryError = err.Error()
		} else {
			report.Delivered = true
			report.ImageRef = ref
		}
	}

	report.FinishedAt = time.Now()
	s.record(ctx, report)
	return report, nil
}

// ProcessFrame runs the detection cascade on one frame and returns every
// reading that normalized to a plate. Detector and recognizer failures are
// logged and treated as empty results.
func (s *ScanService) ProcessFrame(ctx context.Context, frame lpr.Frame) []lpr.Observation {
	log := s.log.With().Int64("frame", frame.Index).Logger()

	vehicles, err := s.vehicles.Detect(ctx, frame.Image)
	if err != nil {
		log.Warn().Err(err).Msg("vehicle detection failed")
		return nil
	}

	var out []lpr.Observation
	for _, vehicle := range vehicles {
		vehicleCrop, ok := imaging.Crop(frame.Image, vehicle.Box)
		if !ok {
			log.Debug().Stringer("box", vehicle.Box).Msg("empty vehicle crop")
			continue
		}

		plates, err := s.plates.Detect(ctx, vehicleCrop)
		if err != nil {
			log.Warn().Err(err).Stringer("vehicle", vehicle.Box).Msg("plate detection failed")
			continue
		}

		for _, plate := range plates {
			plateCrop, ok := imaging.Crop(vehicleCrop, plate.Box)
			if !ok {
				log.Debug().Stringer("box", plate.Box).Msg("empty plate crop")
				continue
			}

			tokens, err := s.recognizer.Recognize(ctx, plateCrop)
			if err != nil {
				log.Warn().Err(err).Stringer("plate", plate.Box).Msg("text recognition failed")
				continue
			}
			if len(tokens) == 0 {
				continue
			}

			raw := utils.JoinTokens(recognize.OrderTokens(tokens, s.sortTokens))
			number, ok := utils.MatchPlate(raw)
			if !ok {
				log.Debug().Str("raw", raw).Msg("text rejected by plate format")
				continue
			}

			log.Debug().
				Str("plate", number).
				Str("raw", raw).
				Float64("confidence", plate.Confidence).
				Msg("plate observed")
			out = append(out, lpr.Observation{
				Plate:      number,
				Raw:        raw,
				Frame:      frame,
				Confidence: plate.Confidence,
			})
		}
	}
	return out
}

func (s *ScanService) record(ctx context.Context, report *lpr.ScanReport) {
	if s.scans == nil {
		return
	}
	if err := s.scans.Create(ctx, report); err != nil {
		s.log.Error().Err(err).Str("scan_id", report.ID.String()).Msg("failed to record scan")
	}
}
