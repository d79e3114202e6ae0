package detect

import (
	"context"
	"image"

	"lpr-service/internal/domain/lpr"
)

// Detector finds regions in an image. Boxes are relative to img's origin. An
// empty result is not an error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]lpr.Detection, error)
}

type DetectorFunc func(ctx context.Context, img image.Image) ([]lpr.Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]lpr.Detection, error) {
	return f(ctx, img)
}
