package logger

import (
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the field-map logging surface shared by the server, the worker and the CLI.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	With(fields map[string]interface{}) Logger
}

// Options mirrors the logging section of the service config.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr or a file path
}

// ParseLevel maps a config string onto a zap level, defaulting to info.
func ParseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (o Options) zapConfig(level zap.AtomicLevel) zap.Config {
	var cfg zap.Config
	if o.Format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level
	if o.Output != "" {
		cfg.OutputPaths = []string{o.Output}
	}
	return cfg
}

// NewLeveled builds the process logger. The returned level handle lets
// config reloads change verbosity without rebuilding the logger.
func NewLeveled(opts Options) (Logger, *zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	l, err := opts.zapConfig(level).Build()
	if err != nil {
		// unwritable output path; fall back to stderr rather than going silent
		opts.Output = "stderr"
		l, err = opts.zapConfig(level).Build()
		if err != nil {
			l = zap.NewNop()
		}
	}
	return &zapWrapper{l: l}, l, level
}

func New(levelStr, format string) *zap.Logger {
	_, l, _ := NewLeveled(Options{Level: levelStr, Format: format})
	return l
}

// NewStructured creates a Logger writing to stdout.
func NewStructured(levelStr, format string) Logger {
	log, _, _ := NewLeveled(Options{Level: levelStr, Format: format})
	return log
}

func NewZapAdapter(l *zap.Logger) Logger {
	return &zapWrapper{l: l}
}

// NewTestLogger routes output through t.Log.
func NewTestLogger(t testing.TB) Logger {
	return &zapWrapper{l: zaptest.NewLogger(t)}
}

func NewNoOpLogger() Logger {
	return &zapWrapper{l: zap.NewNop()}
}

type zapWrapper struct {
	l *zap.Logger
}

func (z *zapWrapper) Debug(msg string, fields map[string]interface{}) {
	z.log(zapcore.DebugLevel, msg, fields)
}

func (z *zapWrapper) Info(msg string, fields map[string]interface{}) {
	z.log(zapcore.InfoLevel, msg, fields)
}

func (z *zapWrapper) Warn(msg string, fields map[string]interface{}) {
	z.log(zapcore.WarnLevel, msg, fields)
}

func (z *zapWrapper) Error(msg string, fields map[string]interface{}) {
	z.log(zapcore.ErrorLevel, msg, fields)
}

func (z *zapWrapper) log(level zapcore.Level, msg string, fields map[string]interface{}) {
	if ce := z.l.Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (z *zapWrapper) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return z
	}
	return &zapWrapper{l: z.l.With(toZapFields(fields)...)}
}

func (z *zapWrapper) WithError(err error) Logger {
	if err == nil {
		return z
	}
	return &zapWrapper{l: z.l.With(zap.Error(err))}
}

func (z *zapWrapper) With(fields map[string]interface{}) Logger {
	return z.WithFields(fields)
}

// toZapFields emits keys in sorted order so console output is stable.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case string:
			out = append(out, zap.String(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
