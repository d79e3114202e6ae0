package dispatch

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"lpr-service/internal/repository"
	"lpr-service/internal/storage"
)

type VehicleWriter interface {
	Create(ctx context.Context, number, imageRef string) (*repository.Vehicle, error)
}

// DirectStore uploads the evidence to object storage and records the vehicle
// row itself.
type DirectStore struct {
	uploader storage.Uploader
	vehicles VehicleWriter
}

func NewDirectStore(uploader storage.Uploader, vehicles VehicleWriter) *DirectStore {
	return &DirectStore{uploader: uploader, vehicles: vehicles}
}

func ObjectKey(plateNumber string) string {
	return fmt.Sprintf("frames/%s_%s.jpg", plateNumber, uuid.NewString())
}

func (s *DirectStore) Store(ctx context.Context, plateNumber string, jpeg []byte) (string, error) {
	if s.uploader == nil {
		return "", storage.ErrNotConfigured
	}

	ref, err := s.uploader.Upload(ctx, ObjectKey(plateNumber), bytes.NewReader(jpeg), int64(len(jpeg)), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}

	if _, err := s.vehicles.Create(ctx, plateNumber, ref); err != nil {
		return "", err
	}
	return ref, nil
}
