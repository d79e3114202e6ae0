package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lpr-service/internal/domain/lpr"
)

type ScanRepository struct {
	db *gorm.DB
}

func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

func (PlateScan) TableName() string {
	return "lpr_scans"
}

type PlateScan struct {
	ID              uuid.UUID `gorm:"type:char(36);primaryKey"`
	Source          string    `gorm:"not null"`
	FrameInterval   int       `gorm:"not null"`
	Status          string    `gorm:"not null"`
	Plate           *string
	Occurrences     int
	Confidence      *float64
	EvidenceFrame   *int64
	ImageRef        *string
	DeliveryError   *string
	ReadError       *string
	FramesRead      int64
	FramesProcessed int64
	Observations    int
	Candidates      datatypes.JSON
	StartedAt       time.Time `gorm:"not null"`
	FinishedAt      time.Time `gorm:"not null"`
	CreatedAt       time.Time
}

func (r *ScanRepository) Create(ctx context.Context, report *lpr.ScanReport) error {
	scan := PlateScan{
		ID:              report.ID,
		Source:          report.Source,
		FrameInterval:   report.Interval,
		Status:          string(report.Status),
		FramesRead:      report.FramesRead,
		FramesProcessed: report.FramesProcessed,
		Observations:    report.Observations,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		CreatedAt:       time.Now(),
	}
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
		report.ID = scan.ID
	}

	if res := report.Result; res != nil {
		scan.Plate = &res.Plate
		scan.Occurrences = res.Occurrences
		scan.Confidence = &res.Confidence
		scan.EvidenceFrame = &res.Evidence.Index
	}
	if report.ImageRef != "" {
		scan.ImageRef = &report.ImageRef
	}
	if report.DeliveryError != "" {
		scan.DeliveryError = &report.DeliveryError
	}
	if report.ReadError != "" {
		scan.ReadError = &report.ReadError
	}
	if len(report.Candidates) > 0 {
		raw, err := json.Marshal(report.Candidates)
		if err != nil {
			return fmt.Errorf("marshal candidates: %w", err)
		}
		scan.Candidates = datatypes.JSON(raw)
	}

	if err := r.db.WithContext(ctx).Create(&scan).Error; err != nil {
		return fmt.Errorf("failed to create scan in database: %w", err)
	}
	return nil
}

// Get returns gorm.ErrRecordNotFound when no scan has the given id.
func (r *ScanRepository) Get(ctx context.Context, id uuid.UUID) (*PlateScan, error) {
	var scan PlateScan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

func (r *ScanRepository) List(ctx context.Context, limit, offset int) ([]PlateScan, error) {
	query := r.db.WithContext(ctx).Model(&PlateScan{}).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var scans []PlateScan
	err := query.Find(&scans).Error
	return scans, err
}
