package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIStore uploads the consensus to a remote vehicle API as multipart form
// data. Only 201 Created counts as success.
type APIStore struct {
	url  string
	http *http.Client
}

func NewAPIStore(url string, timeout time.Duration) *APIStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIStore{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	PlateNumber string `json:"plateNumber"`
	ImageURL    string `json:"imageUrl"`
}

func (s *APIStore) Store(ctx context.Context, plateNumber string, jpeg []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("plateNumber", plateNumber); err != nil {
		return "", fmt.Errorf("failed to write plateNumber: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="plate.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("vehicle api returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var out uploadResponse
	if len(payload) > 0 {
		// a 201 without a readable body is still a stored vehicle
		_ = json.Unmarshal(payload, &out)
	}
	return out.ImageURL, nil
}
