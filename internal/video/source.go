package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"
)

var ErrSourceUnavailable = errors.New("video source unavailable")

// Source yields decoded frames in stream order. Read returns io.EOF when the
// stream is exhausted.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

type OpenOptions struct {
	FFmpegPath  string
	OpenTimeout time.Duration
}

// Open picks a source implementation for uri: a directory of still images or
// anything ffmpeg can demux (file path, http(s), rtsp).
func Open(ctx context.Context, uri string, opts OpenOptions) (Source, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty source", ErrSourceUnavailable)
	}
	if info, err := os.Stat(uri); err == nil && info.IsDir() {
		return OpenDir(uri)
	}
	return OpenFFmpeg(ctx, uri, opts)
}
