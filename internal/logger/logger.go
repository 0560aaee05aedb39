// Package logger provides leveled, sectioned logging for the probe
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the name of the log file written into the log directory
const LogFileName = "ioc.log"

// Options controls where log lines go
type Options struct {
	Level   string // debug, info, warn or error
	Console bool   // mirror to stderr
	File    bool   // write LogFileName in the output directory
}

// Logger is the main logger instance
type Logger struct {
	sugar    *zap.SugaredLogger
	file     *os.File
	filePath string
}

var (
	instance *Logger
	once     sync.Once
)

// ParseLevel maps a config string to a zap level, defaulting to info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init initializes the global logger. Calls after the first are ignored.
func Init(outputDir string, opts Options) error {
	var initErr error
	once.Do(func() {
		level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))
		var cores []zapcore.Core
		l := &Logger{}

		if opts.Console {
			cfg := zap.NewDevelopmentEncoderConfig()
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			cfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.EncodeCaller = zapcore.ShortCallerEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level))
		}

		if opts.File {
			if outputDir == "" {
				outputDir = "."
			}
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				initErr = fmt.Errorf("failed to create log directory: %w", err)
				return
			}
			logPath := filepath.Join(outputDir, LogFileName)
			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				initErr = fmt.Errorf("failed to create log file: %w", err)
				return
			}
			l.file = file
			l.filePath = logPath

			cfg := zap.NewProductionEncoderConfig()
			cfg.EncodeLevel = zapcore.CapitalLevelEncoder
			cfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.EncodeCaller = zapcore.ShortCallerEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(file), level))
		}

		if len(cores) == 0 {
			l.sugar = zap.NewNop().Sugar()
		} else {
			l.sugar = zap.New(zapcore.NewTee(cores...),
				zap.AddCaller(),
				zap.AddCallerSkip(1),
				zap.AddStacktrace(zapcore.ErrorLevel),
			).Sugar()
		}
		instance = l
		instance.writeHeader()
	})

	return initErr
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	if instance == nil || instance.file == nil {
		return ""
	}
	return instance.filePath
}

// Close flushes and closes the log file
func Close() {
	if instance == nil {
		return
	}
	instance.sugar.Infof("Log closed at %s", time.Now().Format("2006-01-02 15:04:05.000 MST"))
	_ = instance.sugar.Sync()
	if instance.file != nil {
		instance.file.Close()
	}
}

func (l *Logger) writeHeader() {
	hostname, _ := os.Hostname()
	l.sugar.Infof("IOC probe starting: host=%s os=%s/%s go=%s", hostname, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	if instance != nil {
		instance.sugar.Debugf(format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if instance != nil {
		instance.sugar.Infof(format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if instance != nil {
		instance.sugar.Warnf(format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if instance != nil {
		instance.sugar.Errorf(format, args...)
	}
}

// Section logs a section header for better readability
func Section(name string) {
	if instance != nil {
		instance.sugar.Infof("========== %s ==========", name)
	}
}

// SubSection logs a subsection header
func SubSection(name string) {
	if instance != nil {
		instance.sugar.Infof("--- %s ---", name)
	}
}

// Timing logs execution time for a function
func Timing(operation string, start time.Time) {
	if instance != nil {
		instance.sugar.Debugf("[TIMING] %s completed in %v", operation, time.Since(start))
	}
}

// APIResult logs Windows API call results
func APIResult(api string, result interface{}, err error) {
	if err != nil {
		Error("API Result: %s failed: %v", api, err)
	} else {
		Debug("API Result: %s success: %v", api, result)
	}
}
