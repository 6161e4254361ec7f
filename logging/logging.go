// Package logging wraps zap with the small, named-logger surface the rest of
// this module expects: one Logger per component, leveled key-value logging,
// and a test-scoped constructor. It deliberately does not carry the
// multi-appender / network log-shipping machinery of a fleet-managed robot
// logger; this core runs embedded in a single process with no log transport.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the leveled, structured logger every package in this module
// takes as a constructor argument rather than reaching for a global.
type Logger interface {
	Named(name string) Logger

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type impl struct {
	sugar *zap.SugaredLogger
}

func (l *impl) Named(name string) Logger {
	return &impl{l.sugar.Named(name)}
}

func (l *impl) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *impl) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *impl) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *impl) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *impl) Debugf(t string, a ...interface{}) { l.sugar.Debugf(t, a...) }
func (l *impl) Infof(t string, a ...interface{})  { l.sugar.Infof(t, a...) }
func (l *impl) Warnf(t string, a ...interface{})  { l.sugar.Warnf(t, a...) }
func (l *impl) Errorf(t string, a ...interface{}) { l.sugar.Errorf(t, a...) }

// zapConfig mirrors the console-encoder defaults used across the retrieved
// viamrobotics-rdk packages: colored levels, ISO8601 time, no stacktraces.
func zapConfig(level zapcore.Level) zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a logger that emits Info-and-above to stdout.
func NewLogger(name string) Logger {
	cfg := zapConfig(zap.InfoLevel)
	z, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &impl{z.Sugar().Named(name)}
}

// NewDebugLogger returns a logger that emits Debug-and-above to stdout.
func NewDebugLogger(name string) Logger {
	cfg := zapConfig(zap.DebugLevel)
	z, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return &impl{z.Sugar().Named(name)}
}

// NewTestLogger returns a logger that writes through t.Log, so output is
// interleaved correctly with `go test -v` and attributed to the right test.
func NewTestLogger(tb testing.TB) Logger {
	return &impl{zaptest.NewLogger(tb, zaptest.Level(zap.DebugLevel)).Sugar()}
}
