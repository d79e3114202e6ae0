package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/imaging"
)

var ErrRekognitionNotConfigured = errors.New("rekognition is not configured")

var DefaultVehicleLabels = []string{"Car", "Truck", "Bus", "Motorcycle", "Vehicle"}

type labelsAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

type RekognitionConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Labels        []string
	MinConfidence float64
	JPEGQuality   int
}

// RekognitionDetector finds vehicles with Amazon Rekognition DetectLabels,
// keeping the located instances of the configured labels.
type RekognitionDetector struct {
	api           labelsAPI
	labels        map[string]struct{}
	minConfidence float64
	quality       int
}

func NewRekognitionDetector(cfg RekognitionConfig) (*RekognitionDetector, error) {
	if cfg.Region == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrRekognitionNotConfigured
	}
	client := rekognition.NewFromConfig(aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	})
	return newRekognitionDetector(client, cfg), nil
}

func newRekognitionDetector(api labelsAPI, cfg RekognitionConfig) *RekognitionDetector {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultVehicleLabels
	}
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return &RekognitionDetector{
		api:           api,
		labels:        set,
		minConfidence: cfg.MinConfidence,
		quality:       cfg.JPEGQuality,
	}
}

func (d *RekognitionDetector) Detect(ctx context.Context, img image.Image) ([]lpr.Detection, error) {
	data, err := imaging.EncodeJPEG(img, d.quality)
	if err != nil {
		return nil, err
	}

	input := &rekognition.DetectLabelsInput{
		Image: &types.Image{Bytes: data},
	}
	if d.minConfidence > 0 {
		input.MinConfidence = aws.Float32(float32(d.minConfidence * 100))
	}

	out, err := d.api.DetectLabels(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("rekognition detect labels: %w", err)
	}

	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	var detections []lpr.Detection
	for _, label := range out.Labels {
		name := aws.ToString(label.Name)
		if _, ok := d.labels[strings.ToLower(name)]; !ok {
			continue
		}
		for _, inst := range label.Instances {
			bb := inst.BoundingBox
			if bb == nil {
				continue
			}
			left := float64(aws.ToFloat32(bb.Left)) * w
			top := float64(aws.ToFloat32(bb.Top)) * h
			right := left + float64(aws.ToFloat32(bb.Width))*w
			bottom := top + float64(aws.ToFloat32(bb.Height))*h

			detections = append(detections, lpr.Detection{
				Box:        image.Rect(int(left), int(top), int(right), int(bottom)),
				Confidence: float64(aws.ToFloat32(inst.Confidence)) / 100,
				Label:      name,
			})
		}
	}
	return detections, nil
}
