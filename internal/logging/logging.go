package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger at the given initial level, returning the
// zap.AtomicLevel backing it so a caller can change the level later
// without rebuilding the logger (internal/config's file watcher uses this
// to apply a log_level change on reload). Production mode emits JSON;
// non-production mode emits a human-readable console encoder so local
// runs of a service binary are legible.
func New(production bool, level zapcore.Level) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevelAt(level)

	if production {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Level = atom
		logger, err := cfg.Build()
		return logger, atom, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = atom
	logger, err := cfg.Build()
	return logger, atom, err
}

// Must is New but panics on failure, for use at process startup where a
// broken logger means the process cannot usefully run at all.
func Must(production bool, level zapcore.Level) (*zap.Logger, zap.AtomicLevel) {
	logger, atom, err := New(production, level)
	if err != nil {
		panic(err)
	}
	return logger, atom
}

// ParseLevel parses a log_level config string, falling back to info on an
// unrecognized value rather than failing process startup over a typo.
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// NopIfNil returns a no-op logger when l is nil, so components can accept
// an optional *zap.Logger without nil-checking on every call.
func NopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// IsDevMode reports whether stack traces and internal error detail may be
// included in responses, per spec §4.7 / §7.
func IsDevMode() bool {
	switch os.Getenv("SAMFMS_ENV") {
	case "production", "prod":
		return false
	default:
		return true
	}
}
