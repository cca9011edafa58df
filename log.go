package main

import (
	"context"
	"os"

	"github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is the logger used by the wallet node services.
type Logger interface {
	// Debug logs a message at debug level.
	// keysAndValues are treated as key-value pairs (e.g., "key1", value1, "key2", value2).
	Debug(msg string, keysAndValues ...interface{})
	// Info logs a message at info level.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a message at warn level.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs a message at error level.
	Error(msg string, keysAndValues ...interface{})
	// Fatal logs a message at fatal level and exits.
	Fatal(msg string, keysAndValues ...interface{})
	// With returns a new logger with the given key-value pair.
	With(key string, value interface{}) Logger
	// NewSystem returns a new logger for the named subsystem that keeps the
	// pairs accumulated with With.
	NewSystem(name string) Logger
}

// NewLoggerIPFS returns a go-log backed logger for the named subsystem. Its
// level follows WCNODE_LOG_LEVEL.
func NewLoggerIPFS(name string) Logger {
	return &ipfsLogger{
		lg:                  log.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
		commonKeysAndValues: []interface{}{},
	}
}

// ipfsLogger keeps the pairs added with With so that NewSystem can carry them
// over to the new subsystem.
type ipfsLogger struct {
	lg                  *zap.SugaredLogger
	commonKeysAndValues []interface{}
}

func (l *ipfsLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.lg.Debugw(msg, keysAndValues...)
}

func (l *ipfsLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Infow(msg, keysAndValues...)
}

func (l *ipfsLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.lg.Warnw(msg, keysAndValues...)
}

func (l *ipfsLogger) Error(msg string, keysAndValues ...interface{}) {
	l.lg.Errorw(msg, keysAndValues...)
}

func (l *ipfsLogger) Fatal(msg string, keysAndValues ...interface{}) {
	l.lg.Fatalw(msg, keysAndValues...)
}

func (l *ipfsLogger) With(key string, value interface{}) Logger {
	kv := make([]interface{}, 0, len(l.commonKeysAndValues)+2)
	kv = append(kv, l.commonKeysAndValues...)
	return &ipfsLogger{
		lg:                  l.lg.With(key, value),
		commonKeysAndValues: append(kv, key, value),
	}
}

func (l *ipfsLogger) NewSystem(name string) Logger {
	lg := log.Logger(name)
	return &ipfsLogger{
		lg:                  lg.SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar().With(l.commonKeysAndValues...),
		commonKeysAndValues: append([]interface{}{}, l.commonKeysAndValues...),
	}
}

// requestLogger returns lg annotated with the identifiers of req.
func requestLogger(lg Logger, req Request) Logger {
	lg = lg.With("requestID", req.ID).With("method", req.Method)
	if req.Topic != "" {
		lg = lg.With("topic", req.Topic)
	}
	return lg
}

type loggerContextKey struct{}

// SetContextLogger attaches the provided logger to the context.
func SetContextLogger(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// LoggerFromContext retrieves the logger stored in the context.
// If none is found, it returns the "wcnode" system logger.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}
	return NewLoggerIPFS("wcnode")
}

// init configures go-log once for every subsystem. Unknown levels fall back
// to info.
func init() {
	logLevel := os.Getenv("WCNODE_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLevel, err := log.Parse(logLevel)
	if err != nil {
		zapLevel = log.LevelInfo
	}

	log.SetupLogging(log.Config{
		Level:  zapLevel,
		Stderr: true,
	})
}
