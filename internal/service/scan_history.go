package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"

	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/repository"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ScanInfo struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	FrameInterval   int             `json:"frame_interval"`
	Status          string          `json:"status"`
	Plate           *string         `json:"plate,omitempty"`
	Occurrences     int             `json:"occurrences"`
	Confidence      *float64        `json:"confidence,omitempty"`
	EvidenceFrame   *int64          `json:"evidence_frame,omitempty"`
	ImageRef        *string         `json:"image_ref,omitempty"`
	DeliveryError   *string         `json:"delivery_error,omitempty"`
	ReadError       *string         `json:"read_error,omitempty"`
	FramesRead      int64           `json:"frames_read"`
	FramesProcessed int64           `json:"frames_processed"`
	Observations    int             `json:"observations"`
	Candidates      []lpr.Candidate `json:"candidates"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
}

func (s *ScanService) GetScan(ctx context.Context, id string) (*ScanInfo, error) {
	if s.scans == nil {
		return nil, ErrNotFound
	}
	scanID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan id", ErrInvalidInput)
	}

	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	info := toScanInfo(*scan)
	return &info, nil
}

func (s *ScanService) ListScans(ctx context.Context, limit, offset int) ([]ScanInfo, error) {
	if s.scans == nil {
		return []ScanInfo{}, nil
	}
	limit, offset = clampPage(limit, offset)

	scans, err := s.scans.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	result := make([]ScanInfo, 0, len(scans))
	for _, scan := range scans {
		result = append(result, toScanInfo(scan))
	}
	return result, nil
}

func toScanInfo(scan repository.PlateScan) ScanInfo {
	info := ScanInfo{
		ID:              scan.ID.String(),
		Source:          scan.Source,
		FrameInterval:   scan.FrameInterval,
		Status:          scan.Status,
		Plate:           scan.Plate,
		Occurrences:     scan.Occurrences,
		Confidence:      scan.Confidence,
		EvidenceFrame:   scan.EvidenceFrame,
		ImageRef:        scan.ImageRef,
		DeliveryError:   scan.DeliveryError,
		ReadError:       scan.ReadError,
		FramesRead:      scan.FramesRead,
		FramesProcessed: scan.FramesProcessed,
		Observations:    scan.Observations,
		Candidates:      []lpr.Candidate{},
		StartedAt:       scan.StartedAt,
		FinishedAt:      scan.FinishedAt,
	}
	if len(scan.Candidates) > 0 {
		// stored by the repository; a malformed column just yields no candidates
		_ = json.Unmarshal(scan.Candidates, &info.Candidates)
	}
	return info
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
