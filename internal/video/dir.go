package video

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSource reads still frames from a directory in lexical file name order.
type DirSource struct {
	files []string
	next  int
}

func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrSourceUnavailable, dir)
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

func (s *DirSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (s *DirSource) Close() error {
	s.next = len(s.files)
	return nil
}
