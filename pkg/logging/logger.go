// Package logging configures the zap logger shared by ledgerd's packages.
//
// A Logger keeps a handle on its level, so the level of a running daemon can
// be changed without a restart (see LevelHandler). Request scoped loggers
// travel in the context with NewContext and FromContext.
package logging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap.Logger together with its adjustable level.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// Config holds logging configuration. The env tags are read by
// NewLoggerFromEnv.
type Config struct {
	// Level is one of debug, info, warn, error, dpanic, panic, fatal.
	Level string `env:"LOG_LEVEL, default=info"`

	// Format is json or console.
	Format string `env:"LOG_FORMAT, default=json"`

	// Development switches to zap's development encoder and adds caller and
	// stack traces to entries. DPanic entries panic.
	Development bool `env:"LOG_DEV, default=false"`

	OutputPaths      []string `env:"LOG_OUTPUT, default=stdout"`
	ErrorOutputPaths []string `env:"LOG_ERROR_OUTPUT, default=stderr"`

	// Service is attached to every entry as the "service" field when set.
	Service string `env:"LOG_SERVICE, default=ledgerd"`
}

// DefaultConfig returns the production configuration: JSON at info level.
func DefaultConfig() Config {
	return Config{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		Service:          "ledgerd",
	}
}

// DevelopmentConfig returns a human readable configuration at debug level.
func DevelopmentConfig() Config {
	c := DefaultConfig()
	c.Level = "debug"
	c.Format = "console"
	c.Development = true
	return c
}

// NewLogger creates a logger with the given configuration.
func NewLogger(config Config) (*Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	atomicLevel := zap.NewAtomicLevelAt(level)
	zapConfig := zap.Config{
		Level:             atomicLevel,
		Development:       config.Development,
		DisableCaller:     !config.Development,
		DisableStacktrace: !config.Development,
		Encoding:          config.Format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       config.OutputPaths,
		ErrorOutputPaths:  config.ErrorOutputPaths,
	}
	if config.Service != "" {
		zapConfig.InitialFields = map[string]interface{}{"service": config.Service}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}

	return &Logger{Logger: logger, level: atomicLevel}, nil
}

// NewLoggerFromEnv creates a logger from the LOG_* environment variables
// described on Config.
func NewLoggerFromEnv(ctx context.Context) (*Logger, error) {
	return newLoggerFrom(ctx, envconfig.OsLookuper())
}

func newLoggerFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Logger, error) {
	var config Config
	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return NewLogger(config)
}

// NewNoOpLogger creates a logger that discards all entries.
func NewNoOpLogger() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// ParseLevel converts a level name to a zapcore.Level. Unknown names are an error.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "dpanic":
		return zapcore.DPanicLevel, nil
	case "panic":
		return zapcore.PanicLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
	}
}

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of l and of every logger derived from it.
func (l *Logger) SetLevel(level string) error {
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(parsed)
	return nil
}

// LevelHandler serves the current level on GET and changes it on PUT with a
// body like {"level":"debug"}.
func (l *Logger) LevelHandler() http.Handler {
	return l.level
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// Named creates a child logger with a name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), level: l.level}
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or the global logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return logger
	}
	return L()
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(NewNoOpLogger())
}

// SetGlobal sets the global logger instance. A nil logger restores the no-op logger.
func SetGlobal(logger *Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	global.Store(logger)
}

// L returns the global logger instance.
func L() *Logger {
	return global.Load()
}
