package recognize

import (
	"context"
	"fmt"
	"image"
	"strings"

	"lpr-service/internal/domain/lpr"
	"lpr-service/internal/inference"
)

// HTTPRecognizer calls an OCR endpoint (EasyOCR-style serving) that answers
// with {"results":[{"text":"12가","box":[x1,y1,x2,y2],"confidence":0.8}]}.
type HTTPRecognizer struct {
	client    *inference.Client
	languages []string
}

func NewHTTPRecognizer(client *inference.Client, languages []string) *HTTPRecognizer {
	return &HTTPRecognizer{client: client, languages: languages}
}

type recognizeResponse struct {
	Results []struct {
		Text       string    `json:"text"`
		Box        []float64 `json:"box"`
		Confidence float64   `json:"confidence"`
	} `json:"results"`
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, img image.Image) ([]lpr.Token, error) {
	var fields map[string]string
	if len(r.languages) > 0 {
		fields = map[string]string{"languages": strings.Join(r.languages, ",")}
	}

	var resp recognizeResponse
	if err := r.client.PostImage(ctx, img, fields, &resp); err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	tokens := make([]lpr.Token, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Text == "" {
			continue
		}
		box, _ := inference.Rect(res.Box)
		tokens = append(tokens, lpr.Token{
			Text:       res.Text,
			Box:        box,
			Confidence: res.Confidence,
		})
	}
	return tokens, nil
}
