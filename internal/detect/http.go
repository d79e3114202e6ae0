package detect

import (
	"context"
	"fmt"
	"image"

	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/inference"
)

// HTTPDetector calls a model-serving endpoint that answers with
// {"detections":[{"box":[x1,y1,x2,y2],"confidence":0.93,"label":"car"}]}.
type HTTPDetector struct {
	client *inference.Client
}

func NewHTTPDetector(client *inference.Client) *HTTPDetector {
	return &HTTPDetector{client: client}
}

type detectResponse struct {
	Detections []struct {
		Box        []float64 `json:"box"`
		Confidence float64   `json:"confidence"`
		Label      string    `json:"label"`
	} `json:"detections"`
}

func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]lpr.Detection, error) {
	var resp detectResponse
	if err := d.client.PostImage(ctx, img, nil, &resp); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	detections := make([]lpr.Detection, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		box, ok := inference.Rect(det.Box)
		if !ok {
			continue
		}
		detections = append(detections, lpr.Detection{
			Box:        box,
			Confidence: det.Confidence,
			Label:      det.Label,
		})
	}
	return detections, nil
}
