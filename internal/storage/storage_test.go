package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStoreUpload(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	path, err := s.Upload(context.Background(), "frames/12가3456_x.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if path != filepath.Join(dir, "frames", "12가3456_x.jpg") {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("stored %v, %v", got, err)
	}
}

func TestLocalStoreStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	path, err := s.Upload(context.Background(), "../../escape.jpg", bytes.NewReader([]byte("x")), 1, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("path %q escapes %q", path, dir)
	}
}

func TestLocalStoreRejectsEmpty(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	if _, err := s.Upload(context.Background(), "a.jpg", bytes.NewReader(nil), 0, "image/jpeg"); err == nil {
		t.Error("Upload() of empty body should fail")
	}
}

func TestNewS3ClientNotConfigured(t *testing.T) {
	if _, err := NewS3Client(S3Config{Bucket: "frames"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name   string
		client S3Client
		want   string
	}{
		{
			name:   "public base url",
			client: S3Client{bucket: "lpr", publicBaseURL: "https://cdn.example.com"},
			want:   "https://cdn.example.com/lpr/frames/a.jpg",
		},
		{
			name:   "custom endpoint",
			client: S3Client{bucket: "lpr", endpoint: "https://acc.r2.cloudflarestorage.com"},
			want:   "https://acc.r2.cloudflarestorage.com/lpr/frames/a.jpg",
		},
		{
			name:   "aws",
			client: S3Client{bucket: "lpr", region: "ap-northeast-2"},
			want:   "https://lpr.s3.ap-northeast-2.amazonaws.com/frames/a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.objectURL("/frames/a.jpg"); got != tt.want {
				t.Errorf("objectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
