// Package logging wraps zap with the defaults and field helpers used across
// propdesk.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects level, encoding and destination.
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`   // debug, info, warn, error, fatal
	Format      string `json:"format" yaml:"format"` // json or text
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
	Development bool   `json:"development,omitempty" yaml:"development,omitempty"`
}

// Logger is a zap.Logger with a cached sugared twin.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger builds a Logger. An unusable Output falls back to stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stderr)
	var openErr error
	if cfg.Output != "" && cfg.Output != "stderr" {
		if cfg.Output == "stdout" {
			ws = zapcore.AddSync(os.Stdout)
		} else if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			ws = zapcore.AddSync(f)
		} else {
			openErr = err
		}
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	base := zap.New(zapcore.NewCore(enc, ws, level), opts...)
	if openErr != nil {
		// Reported whatever the configured level.
		zap.New(zapcore.NewCore(enc, ws, zapcore.WarnLevel)).Warn("log output unavailable, writing to stderr",
			zap.String("output", cfg.Output), zap.Error(openErr))
	}
	return &Logger{Logger: base, sugar: base.Sugar()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	base := zap.NewNop()
	return &Logger{Logger: base, sugar: base.Sugar()}
}

// New wraps an existing zap.Logger.
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{Logger: z, sugar: z.Sugar()}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sugar returns the sugared logger.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// With returns a child Logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithUser(userID string) *Logger    { return l.With(UserID(userID)) }
func (l *Logger) WithMode(mode string) *Logger      { return l.With(Mode(mode)) }

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// L returns the process-wide Logger, creating an info-level JSON one on first use.
func L() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// SetGlobalLogger replaces the process-wide Logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// InitGlobalLogger builds a Logger from cfg and installs it globally.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}
