package inference

import (
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestPostImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("languages"); got != "ko,en" {
			t.Errorf("languages = %q", got)
		}
		f, fh, err := r.FormFile("image")
		if err != nil {
			t.Errorf("image part: %v", err)
			return
		}
		defer f.Close()
		if ct := fh.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("image content type = %q", ct)
		}
		data, _ := io.ReadAll(f)
		if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
			t.Error("image part is not a JPEG")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{Limiter: NewLimiter(100)})
	var out struct {
		Value int `json:"value"`
	}
	err := c.PostImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), map[string]string{"languages": "ko,en"}, &out)
	if err != nil {
		t.Fatalf("PostImage() error = %v", err)
	}
	if out.Value != 42 {
		t.Errorf("decoded value = %d", out.Value)
	}
}

func TestPostImageNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{})
	var out map[string]any
	err := c.PostImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)), nil, &out)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("PostImage() error = %v, want 503", err)
	}
}

func TestRect(t *testing.T) {
	r, ok := Rect([]float64{10.9, 20.2, 30.7, 40.1})
	if !ok || r != image.Rect(10, 20, 30, 40) {
		t.Errorf("Rect() = %v, %v", r, ok)
	}
	if _, ok := Rect([]float64{1, 2, 3}); ok {
		t.Error("Rect() with 3 values should fail")
	}
	inverted, ok := Rect([]float64{30, 20, 4, 4})
	if !ok || !inverted.Empty() {
		t.Errorf("Rect() inverted = %v, want empty", inverted)
	}
}

func TestPostImageOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pad":"`))
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseSize)))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient(srv.URL, Options{}).PostImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)), nil, &out)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("PostImage() error = %v, want size error", err)
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Error("NewLimiter(0) should disable limiting")
	}
	if l := NewLimiter(0.5); l == nil || l.Burst() != 1 {
		t.Errorf("NewLimiter(0.5) = %v, want burst 1", l)
	}
}

func TestClientsShareLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	first := NewClient(srv.URL, Options{Limiter: limiter})
	second := NewClient(srv.URL, Options{Limiter: limiter})
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	var out map[string]any
	if err := first.PostImage(context.Background(), img, nil, &out); err != nil {
		t.Fatalf("first PostImage() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := second.PostImage(ctx, img, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("second PostImage() error = %v, want rate limit", err)
	}
}
