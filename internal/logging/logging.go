package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"round-settlement/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	writer io.Writer = os.Stdout
	closer io.Closer
)

// Init configures the global zerolog logger. When cfg.File is set, output is
// teed to stdout and a size-rotated file.
func Init(cfg config.LogConfig) {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	out := buildWriter(cfg)

	var console io.Writer = out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: out}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(console).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
}

func buildWriter(cfg config.LogConfig) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	writer = os.Stdout
	if strings.TrimSpace(cfg.File) == "" {
		return writer
	}
	maxMB := cfg.MaxMB
	if maxMB <= 0 {
		maxMB = 10
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxMB,
		MaxBackups: cfg.MaxBackups,
	}
	closer = lj
	writer = io.MultiWriter(os.Stdout, lj)
	return writer
}

// Writer is the raw sink Init selected, for handlers that format their own records.
func Writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return writer
}

// Close flushes and releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	writer = os.Stdout
	return err
}
