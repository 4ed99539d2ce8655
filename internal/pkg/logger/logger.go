// Package logger is the process-wide structured logger.
//
// The vault, the automation engine and the admin API share one zap logger.
// Its level is a zap.AtomicLevel so operators can raise or lower verbosity at
// runtime through /log/level. Every entry passes through a redacting core
// that masks fields named like secrets, so a stray zap.String("password", …)
// never reaches the output.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "portal-automation"

var (
	mu          sync.RWMutex
	global      *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
)

// Init builds the global logger. level is one of debug, info, warn, error;
// format is json (default) or console. Calling Init again replaces the
// logger and applies the new level.
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = atomicLevel
	cfg.InitialFields = map[string]interface{}{"service": serviceName}

	l, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.WrapCore(func(c zapcore.Core) zapcore.Core { return redact(c) }),
	)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	atomicLevel.SetLevel(lvl)
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// SetLevel changes the level of the running logger.
func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

// GetLevel returns the current level.
func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// L returns the global logger. It panics before Init.
func L() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		panic("logger.Init() must be called before logger.L()")
	}
	return l
}

// S returns the sugared global logger.
func S() *zap.SugaredLogger { return L().Sugar() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

// With returns a child logger carrying fields.
func With(fields ...zap.Field) *zap.Logger { return L().With(fields...) }

// Component returns a named child logger, e.g. Component("vault"), whose
// caller info points at the component's own call sites.
func Component(name string, fields ...zap.Field) *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(-1)).Named(name).With(fields...)
}

// LevelHandler exposes the AtomicLevel, which implements http.Handler:
//
//	GET  /log/level                        current level
//	PUT  /log/level -d '{"level":"debug"}' change level
func LevelHandler() *zap.AtomicLevel { return &atomicLevel }

// Sync flushes buffered entries. It is a no-op before Init.
func Sync() error {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}
