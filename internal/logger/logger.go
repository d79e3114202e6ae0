package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Environment string
	Level       string
	// File enables a rotated JSON log file next to the console output.
	File string
}

func New(opts Options) zerolog.Logger {
	level := zerolog.DebugLevel
	if opts.Environment == "production" {
		level = zerolog.InfoLevel
	}
	if parsed, err := zerolog.ParseLevel(opts.Level); err == nil && opts.Level != "" {
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stderr
	if opts.Environment != "production" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	out := console
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			LocalTime:  true,
			Compress:   true,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("env", opts.Environment).Logger()
}
