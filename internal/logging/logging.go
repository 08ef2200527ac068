// internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// zap logger construction for the proxy command: console or json output on
// a writer, optionally teed into a rotating log file.

package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, encoding and an optional log file.
type Options struct {
	Level    string    // debug, info, warn, error
	Format   string    // console or json
	FilePath string    // rotating file, empty disables
	Output   io.Writer // defaults to os.Stdout
}

func fileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    500, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

func encoderConfig(format string) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	cfg.StacktraceKey = ""
	cfg.CallerKey = ""
	if format == "console" {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

// New builds the logger. The returned close func flushes and releases the
// log file, if any.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var enc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		enc = zapcore.NewConsoleEncoder(encoderConfig("console"))
	case "json":
		enc = zapcore.NewJSONEncoder(encoderConfig("json"))
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), zap.NewAtomicLevelAt(level))

	if opts.FilePath == "" {
		log := zap.New(core)
		return log, func() error { return ignoreSyncErr(log.Sync()) }, nil
	}

	// the file always gets json at the configured level
	file := fileWriter(opts.FilePath)
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig("json")), zapcore.AddSync(file), zap.NewAtomicLevelAt(level))
	log := zap.New(zapcore.NewTee(core, fileCore))
	return log, func() error {
		_ = ignoreSyncErr(log.Sync())
		return file.Close()
	}, nil
}

// stdout sync fails with EINVAL on terminals and pipes.
func ignoreSyncErr(err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*os.PathError); ok && pe.Op == "sync" {
		return nil
	}
	return err
}
