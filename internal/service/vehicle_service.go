package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"lpr-service/internal/dispatch"
	"lpr-service/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

type VehicleFinder interface {
	Find(ctx context.Context, number *string, limit, offset int) ([]repository.Vehicle, error)
}

// VehicleService backs the vehicle upload API: it stores uploaded evidence the
// same way a scan running with the direct backend does.
type VehicleService struct {
	store    dispatch.Store
	vehicles VehicleFinder
	log      zerolog.Logger
}

func NewVehicleService(store dispatch.Store, vehicles VehicleFinder, log zerolog.Logger) *VehicleService {
	return &VehicleService{
		store:    store,
		vehicles: vehicles,
		log:      log.With().Str("component", "vehicles").Logger(),
	}
}

type VehicleInfo struct {
	ID          int64     `json:"id,omitempty"`
	PlateNumber string    `json:"plateNumber"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

func (s *VehicleService) Register(ctx context.Context, plateNumber string, image []byte) (*VehicleInfo, error) {
	plateNumber = strings.TrimSpace(plateNumber)
	if plateNumber == "" {
		return nil, fmt.Errorf("%w: plateNumber is required", ErrInvalidInput)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	ref, err := s.store.Store(ctx, plateNumber, image)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("plate", plateNumber).
			Int("bytes", len(image)).
			Msg("failed to store vehicle")
		return nil, fmt.Errorf("failed to store vehicle: %w", err)
	}

	s.log.Info().
		Str("plate", plateNumber).
		Str("image_url", ref).
		Msg("vehicle stored")

	return &VehicleInfo{PlateNumber: plateNumber, ImageURL: ref}, nil
}

func (s *VehicleService) List(ctx context.Context, plateQuery *string, limit, offset int) ([]VehicleInfo, error) {
	limit, offset = clampPage(limit, offset)

	vehicles, err := s.vehicles.Find(ctx, plateFilter(plateQuery), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}

	result := make([]VehicleInfo, 0, len(vehicles))
	for _, v := range vehicles {
		result = append(result, VehicleInfo{
			ID:          v.ID,
			PlateNumber: v.Number,
			ImageURL:    v.Image,
			CreatedAt:   v.CreatedAt,
		})
	}
	return result, nil
}

const exportSheet = "vehicles"

// Export renders every stored vehicle matching plateQuery as an xlsx workbook.
func (s *VehicleService) Export(ctx context.Context, plateQuery *string) ([]byte, error) {
	vehicles, err := s.vehicles.Find(ctx, plateFilter(plateQuery), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header := []any{"ID", "Plate number", "Image", "Created at"}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, v := range vehicles {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{v.ID, v.Number, v.Image, v.CreatedAt.Format(time.RFC3339)}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.log.Debug().Int("rows", len(vehicles)).Msg("vehicles exported")
	return buf.Bytes(), nil
}

func plateFilter(q *string) *string {
	if q == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*q)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
