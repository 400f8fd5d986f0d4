// Package logging is the fire-and-forget log sink consumed by the
// orchestration components. The production implementation is backed by zap.
package logging

import (
	"fmt"
	"strings"

	"github.com/pario-ai/orchestra/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the severity of a log entry.
type Level int8

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// Fields is the structured context attached to an entry.
type Fields map[string]any

// Sink receives log entries. Implementations must be safe for concurrent use
// and must never fail the caller: a broken sink drops the entry.
type Sink interface {
	Log(level Level, msg string, fields Fields)
}

// Nop returns a Sink that discards everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Log(Level, string, Fields) {}

// OrNop returns s, or a no-op sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return nopSink{}
	}
	return s
}

type zapSink struct {
	l *zap.Logger
}

// NewZap adapts a zap logger to Sink.
func NewZap(l *zap.Logger) Sink {
	if l == nil {
		return nopSink{}
	}
	return &zapSink{l: l}
}

func (s *zapSink) Log(level Level, msg string, fields Fields) {
	defer func() { _ = recover() }()

	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			zf = append(zf, zap.NamedError(k, err))
			continue
		}
		zf = append(zf, zap.Any(k, v))
	}
	if ce := s.l.Check(zapcore.Level(level), msg); ce != nil {
		ce.Write(zf...)
	}
}

// New builds a zap logger from cfg. Format "console" selects the
// development encoder; anything else logs JSON.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
