package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"lpr-service/internal/utils"
)

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01

	defaultOpenTimeout = 30 * time.Second
	stderrTailSize     = 4096
)

// FFmpegSource decodes a video through an ffmpeg subprocess that writes MJPEG
// frames to stdout.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	r      *bufio.Reader
	stderr *tailBuffer
	cancel context.CancelFunc

	// drained is set when ffmpeg exited cleanly without writing a frame.
	drained bool

	closeOnce sync.Once
	closeErr  error
}

var errNoFrames = errors.New("ffmpeg exited without frames")

// OpenFFmpeg starts ffmpeg for uri and waits for the first frame, so a source
// that cannot be opened fails here rather than on the first Read.
func OpenFFmpeg(ctx context.Context, uri string, opts OpenOptions) (*FFmpegSource, error) {
	bin := opts.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}

	// The process lives until Close, not until ctx is done.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", uri,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: ffmpeg stdout: %v", ErrSourceUnavailable, err)
	}
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrSourceUnavailable, err)
	}

	s := &FFmpegSource{
		cmd:    cmd,
		stdout: stdout,
		r:      bufio.NewReaderSize(stdout, 1<<20),
		stderr: stderr,
		cancel: cancel,
	}

	name := utils.RedactURL(uri)
	peeked := make(chan error, 1)
	go func() {
		_, err := s.r.Peek(2)
		if errors.Is(err, io.EOF) && s.wait() == nil {
			err = errNoFrames
		}
		peeked <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-peeked:
		switch {
		case errors.Is(err, errNoFrames):
			s.drained = true
		case err != nil:
			_ = s.Close()
			detail := strings.ReplaceAll(s.failureDetail(err), uri, name)
			return nil, fmt.Errorf("%w: %s: %s", ErrSourceUnavailable, name, detail)
		}
	case <-timer.C:
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s: no frame within %s", ErrSourceUnavailable, name, timeout)
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, name, ctx.Err())
	}

	return s, nil
}

func (s *FFmpegSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.drained {
		return nil, io.EOF
	}
	data, err := readJPEG(s.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Close stops ffmpeg and releases the pipe. It is safe to call more than once.
func (s *FFmpegSource) Close() error {
	s.cancel()
	s.closeOnce.Do(func() {
		_ = s.stdout.Close()
		s.closeErr = ignoreExit(s.cmd.Wait())
	})
	return s.closeErr
}

// wait reaps an ffmpeg process that already closed stdout and reports its
// exit status. It returns nil only for a clean exit.
func (s *FFmpegSource) wait() error {
	err := errors.New("ffmpeg already stopped")
	s.closeOnce.Do(func() {
		err = s.cmd.Wait()
		s.cancel()
		s.closeErr = ignoreExit(err)
	})
	return err
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (s *FFmpegSource) failureDetail(err error) string {
	if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
		return tail
	}
	if errors.Is(err, io.EOF) {
		return "ffmpeg produced no frames"
	}
	return err.Error()
}

// readJPEG reads one complete JPEG image (SOI through EOI) from an MJPEG
// stream. Segment lengths are honored and entropy-coded data is scanned with
// byte stuffing in mind, so 0xFFD9 inside a header cannot end the frame early.
// A stream that ends before the next SOI returns io.EOF.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	if err := skipToSOI(r); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, markerSOI})

	marker, err := readMarker(r)
	for {
		if err != nil {
			return nil, unexpected(err)
		}
		buf.Write([]byte{0xFF, marker})

		switch {
		case marker == markerEOI:
			return buf.Bytes(), nil
		case marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7):
			marker, err = readMarker(r)
			continue
		}

		var size [2]byte
		if _, err := io.ReadFull(r, size[:]); err != nil {
			return nil, unexpected(err)
		}
		n := int64(binary.BigEndian.Uint16(size[:]))
		if n < 2 {
			return nil, fmt.Errorf("jpeg segment 0x%02X: invalid length %d", marker, n)
		}
		buf.Write(size[:])
		if _, err := io.CopyN(&buf, r, n-2); err != nil {
			return nil, unexpected(err)
		}

		if marker == markerSOS {
			marker, err = copyScan(&buf, r)
			continue
		}
		marker, err = readMarker(r)
	}
}

func skipToSOI(r *bufio.Reader) error {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == markerSOI {
			return nil
		}
		prev = b
	}
}

func readMarker(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("jpeg: expected marker, got 0x%02X", b)
	}
	for b == 0xFF {
		if b, err = r.ReadByte(); err != nil {
			return 0, err
		}
	}
	return b, nil
}

// copyScan copies entropy-coded data and returns the marker that ends it.
func copyScan(buf *bytes.Buffer, r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			buf.WriteByte(b)
			continue
		}
		next, err := r.ReadByte()
		for err == nil && next == 0xFF {
			next, err = r.ReadByte()
		}
		if err != nil {
			return 0, err
		}
		if next == 0x00 || (next >= 0xD0 && next <= 0xD7) {
			buf.Write([]byte{0xFF, next})
			continue
		}
		return next, nil
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
