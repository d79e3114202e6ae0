package lpr

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Frame is a sampled video frame. Index is the 1-based position of the frame
// in the source, counting every decoded frame.
type Frame struct {
	Index int64
	Image image.Image
}

// Detection is a bounding box reported by a region detector, relative to the
// image it was detected in.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"`
	Label      string          `json:"label,omitempty"`
}

// Token is one text fragment returned by the recognizer for a plate crop.
type Token struct {
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence,omitempty"`
}

type Observation struct {
	Plate      string
	Raw        string
	Frame      Frame
	Confidence float64
}

// Candidate is the aggregate kept per canonical plate string during a scan.
type Candidate struct {
	Plate          string  `json:"plate"`
	Occurrences    int     `json:"occurrences"`
	BestConfidence float64 `json:"best_confidence"`
	MeanConfidence float64 `json:"mean_confidence"`
	BestFrame      int64   `json:"best_frame"`
	FirstSeen      int64   `json:"first_seen"`
	Evidence       Frame   `json:"-"`
}

type ConsensusResult struct {
	Plate       string  `json:"plate"`
	Occurrences int     `json:"occurrences"`
	Confidence  float64 `json:"confidence"`
	Evidence    Frame   `json:"-"`
}

type ScanStatus string

const (
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusNoPlate   ScanStatus = "no_plate"
	ScanStatusFailed    ScanStatus = "failed"
)

type ScanReport struct {
	ID              uuid.UUID        `json:"id"`
	Source          string           `json:"source"`
	Interval        int              `json:"frame_interval"`
	Status          ScanStatus       `json:"status"`
	FramesRead      int64            `json:"frames_read"`
	FramesProcessed int64            `json:"frames_processed"`
	Observations    int              `json:"observations"`
	Result          *ConsensusResult `json:"result,omitempty"`
	Candidates      []Candidate      `json:"candidates"`
	Delivered       bool             `json:"delivered"`
	ImageRef        string           `json:"image_ref,omitempty"`
	DeliveryError   string           `json:"delivery_error,omitempty"`
	ReadError       string           `json:"read_error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}
