package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

const DefaultJPEGQuality = 90

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop clips img to box. The box is interpreted relative to the image origin,
// so crops of crops keep working with detector coordinates. It returns false
// when the clipped region has zero area.
func Crop(img image.Image, box image.Rectangle) (image.Image, bool) {
	if img == nil {
		return nil, false
	}
	bounds := img.Bounds()
	r := box.Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, false
	}

	if si, ok := img.(subImager); ok {
		return si.SubImage(r), true
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, true
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode jpeg: nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
