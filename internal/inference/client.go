package inference

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"lpr-service/internal/imaging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseSize bounds how much of an inference response is read.
const maxResponseSize = 4 << 20

type Options struct {
	Timeout time.Duration
	// Limiter is shared by every client built from one pipeline; nil disables
	// limiting.
	Limiter     *rate.Limiter
	JPEGQuality int
}

// NewLimiter returns a limiter allowing perSecond requests, or nil when
// perSecond is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Client posts images to a model-serving endpoint as multipart JPEG and
// decodes JSON responses.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	quality  int
}

func NewClient(endpoint string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		limiter:  opts.Limiter,
		quality:  opts.JPEGQuality,
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// PostImage sends img as the "image" part together with fields and decodes a
// 2xx JSON response into out.
func (c *Client) PostImage(ctx context.Context, img image.Image, fields map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	data, err := imaging.EncodeJPEG(img, c.quality)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference request to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("read inference response: %w", err)
	}
	if len(payload) > maxResponseSize {
		return fmt.Errorf("inference endpoint %s: response exceeds %d bytes", c.endpoint, maxResponseSize)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("inference endpoint %s returned %d: %s", c.endpoint, resp.StatusCode, truncate(payload, 200))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode inference response: %w", err)
	}
	return nil
}

// Rect converts an [x1, y1, x2, y2] box to integer pixels, truncating like a
// plain int conversion. Inverted corners are kept as given, so the result is
// empty rather than flipped.
func Rect(box []float64) (image.Rectangle, bool) {
	if len(box) != 4 {
		return image.Rectangle{}, false
	}
	return image.Rectangle{
		Min: image.Pt(int(box[0]), int(box[1])),
		Max: image.Pt(int(box[2]), int(box[3])),
	}, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
