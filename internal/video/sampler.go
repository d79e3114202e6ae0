package video

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/rs/zerolog"

	"lpr-service/internal/domain/lpr"
)

const DefaultFrameInterval = 6

type SamplerStats struct {
	FramesRead    int64
	FramesYielded int64
}

// Sampler yields every Nth frame of a Source. It owns the source and closes it
// when iteration ends.
type Sampler struct {
	src      Source
	interval int64
	log      zerolog.Logger

	stats SamplerStats
	err   error
}

func NewSampler(src Source, interval int, log zerolog.Logger) *Sampler {
	if interval < 1 {
		interval = 1
	}
	return &Sampler{
		src:      src,
		interval: int64(interval),
		log:      log,
	}
}

// Frames returns a single-use sequence of sampled frames in source order.
// Frame indices are 1-based, so with interval 6 the frames 6, 12, 18, ... are
// yielded. Iteration stops at end of stream, on a read failure (see Err) or
// when ctx is done.
func (s *Sampler) Frames(ctx context.Context) iter.Seq[lpr.Frame] {
	return func(yield func(lpr.Frame) bool) {
		defer s.close()

		for {
			if err := ctx.Err(); err != nil {
				s.err = err
				return
			}
			img, err := s.src.Read(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.err = err
					s.log.Warn().
						Err(err).
						Int64("frames_read", s.stats.FramesRead).
						Msg("stopping frame sampling after read failure")
				}
				return
			}
			s.stats.FramesRead++

			if s.stats.FramesRead%s.interval != 0 {
				continue
			}
			s.stats.FramesYielded++
			if !yield(lpr.Frame{Index: s.stats.FramesRead, Image: img}) {
				return
			}
		}
	}
}

// Err returns the read failure that ended iteration, if any. End of stream is
// not an error.
func (s *Sampler) Err() error {
	return s.err
}

func (s *Sampler) Stats() SamplerStats {
	return s.stats
}

func (s *Sampler) close() {
	if err := s.src.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close video source")
	}
}
