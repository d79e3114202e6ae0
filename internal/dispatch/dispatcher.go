package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/imaging"
)

// ErrPersistence marks a consensus that could not be stored. The scan result
// itself is still valid when this is returned.
var ErrPersistence = errors.New("persistence failure")

// Store persists a plate number together with its JPEG evidence and returns a
// reference (URL or path) to the stored image.
type Store interface {
	Store(ctx context.Context, plateNumber string, jpeg []byte) (string, error)
}

type StoreFunc func(ctx context.Context, plateNumber string, jpeg []byte) (string, error)

func (f StoreFunc) Store(ctx context.Context, plateNumber string, jpeg []byte) (string, error) {
	return f(ctx, plateNumber, jpeg)
}

type Dispatcher struct {
	store   Store
	backend string
	quality int
	log     zerolog.Logger
}

func NewDispatcher(store Store, backend string, jpegQuality int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		backend: backend,
		quality: jpegQuality,
		log:     log.With().Str("component", "dispatcher").Str("backend", backend).Logger(),
	}
}

// Dispatch encodes the evidence frame and hands it to the store exactly once.
func (d *Dispatcher) Dispatch(ctx context.Context, result lpr.ConsensusResult) (string, error) {
	if result.Evidence.Image == nil {
		d.log.Error().
			Str("plate", result.Plate).
			Int64("frame", result.Evidence.Index).
			Msg("consensus has no evidence frame")
		return "", fmt.Errorf("%w: consensus %s has no evidence frame", ErrPersistence, result.Plate)
	}

	data, err := imaging.EncodeJPEG(result.Evidence.Image, d.quality)
	if err != nil {
		d.log.Error().
			Err(err).
			Str("plate", result.Plate).
			Int64("frame", result.Evidence.Index).
			Msg("failed to encode evidence frame")
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	ref, err := d.store.Store(ctx, result.Plate, data)
	if err != nil {
		d.log.Error().
			Err(err).
			Str("plate", result.Plate).
			Int64("frame", result.Evidence.Index).
			Msg("failed to persist consensus")
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	d.log.Info().
		Str("plate", result.Plate).
		Int64("frame", result.Evidence.Index).
		Str("image_ref", ref).
		Int("bytes", len(data)).
		Msg("consensus persisted")
	return ref, nil
}
