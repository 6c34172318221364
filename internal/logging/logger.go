package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the level and encoding of the process logger.
type LogConfig struct {
	Level  string
	Format string
}

var (
	mu      sync.RWMutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base    = newLogger(level, "json")
	sugared = base.Sugar()
	isDebug = false

	configured = zapcore.InfoLevel
)

// Init rebuilds the package logger from cfg.
func Init(cfg LogConfig) error {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	level.SetLevel(lvl)

	mu.Lock()
	defer mu.Unlock()
	base = newLogger(level, cfg.Format)
	sugared = base.Sugar()
	configured = lvl
	isDebug = lvl <= zapcore.DebugLevel
	return nil
}

func newLogger(lvl zap.AtomicLevel, format string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLogger replaces the underlying zap logger. Used by tests to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l.WithOptions(zap.AddCallerSkip(1))
	sugared = base.Sugar()
}

// SetDebug forces debug logging on. SetDebug(false) returns to the level
// given to Init.
func SetDebug(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	if debug {
		isDebug = true
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	isDebug = configured <= zapcore.DebugLevel
	level.SetLevel(configured)
}

// Zap exposes the structured logger for libraries that want one.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func current() (*zap.SugaredLogger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return sugared, isDebug
}

// Debug logs a debug-level message
func Debug(format string, v ...interface{}) {
	if s, debug := current(); debug {
		s.Debugf(format, v...)
	}
}

// Info logs an info-level message
func Info(format string, v ...interface{}) {
	s, _ := current()
	s.Infof(format, v...)
}

// Warn logs a warning-level message
func Warn(format string, v ...interface{}) {
	s, _ := current()
	s.Warnf(format, v...)
}

// Error logs an error-level message
func Error(format string, v ...interface{}) {
	s, _ := current()
	s.Errorf(format, v...)
}

// Sync flushes buffered log entries.
func Sync() error {
	s, _ := current()
	return s.Sync()
}
