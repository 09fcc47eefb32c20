// Package logging provides subsystem-scoped loggers for yukemuri.
// Loggers are backed by zap. In normal operation only warnings and errors
// reach the console; with debug mode enabled every subsystem also writes to
// a shared file under <data>/logs/ so analysis runs can be replayed.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Subsystem names used across the codebase. Keeping them in one place makes
// log filtering predictable (`grep '"sub": "analyze"'`).
const (
	SubStore    = "store"
	SubConfig   = "config"
	SubDataset  = "dataset"
	SubAnalyze  = "analyze"
	SubInsight  = "insight"
	SubReport   = "report"
	SubRevision = "revision"
	SubExchange = "exchange"
	SubGeo      = "geo"
	SubServe    = "serve"
	SubWatch    = "watch"
	SubSnapshot = "snapshot"
	SubCLI      = "cli"
)

// Options controls how the shared logger tree is built.
type Options struct {
	// Debug lowers the level to Debug and enables the file sink.
	Debug bool
	// Dir is the data directory; log files land in Dir/logs. Empty disables
	// the file sink even in debug mode.
	Dir string
}

var (
	mu   sync.RWMutex
	root *zap.Logger = zap.NewNop()
)

// Initialize builds the process-wide logger tree. Safe to call more than
// once; the last call wins. Returns the file path in use, if any.
func Initialize(opts Options) (string, error) {
	level := zapcore.WarnLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}
	logPath := ""

	if opts.Debug && opts.Dir != "" {
		logsDir := filepath.Join(opts.Dir, "logs")
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create logs directory: %w", err)
		}
		logPath = filepath.Join(logsDir, time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return "", fmt.Errorf("failed to open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileCfg),
			zapcore.AddSync(f),
			zapcore.DebugLevel,
		))
	}

	mu.Lock()
	root = zap.New(zapcore.NewTee(cores...))
	mu.Unlock()
	return logPath, nil
}

// L returns a sugared logger tagged with the given subsystem.
func L(subsystem string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Sugar().With("sub", subsystem)
}

// Sync flushes buffered log entries. Call once at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Timer measures an operation and logs its duration at debug level.
type Timer struct {
	sub   string
	op    string
	start time.Time
}

// StartTimer begins timing an operation for the given subsystem.
func StartTimer(subsystem, operation string) *Timer {
	return &Timer{sub: subsystem, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the elapsed duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	L(t.sub).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning when the operation exceeded the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		L(t.sub).Warnf("%s took %v (threshold %v)", t.op, elapsed, threshold)
	} else {
		L(t.sub).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
