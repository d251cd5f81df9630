// Package logger provides the structured, level-filtered logger used
// throughout imapfs. It wraps log/slog with a custom TRACE level (below
// slog's Debug) and two renderings, text and json, selected at mount time.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/waweber/imapfs/cfg"
)

// Custom levels. slog reserves -4..8 for Debug..Error; Trace sits below
// Debug the same way Google's fork of this logger does.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var defaultLogger *slog.Logger
var defaultLoggerFactory *loggerFactory

func init() {
	defaultLoggerFactory = &loggerFactory{
		format: "text",
		level:  cfg.InfoLogSeverity,
	}
	var programLevel = new(slog.LevelVar)
	setLoggingLevel(string(defaultLoggerFactory.level), programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
}

type loggerFactory struct {
	file      *os.File
	sysWriter io.Writer
	format    string
	level     cfg.LogSeverity
	rotate    cfg.LogRotateLoggingConfig
}

// InitLogFile points the default logger at cfg's configured file (or
// stderr, if FilePath is empty), format, and severity. It may be called
// again to reconfigure.
func InitLogFile(c cfg.LoggingConfig) error {
	factory := &loggerFactory{
		format: c.Format,
		level:  c.Severity,
		rotate: c.LogRotate,
	}

	var w io.Writer = os.Stderr
	if c.FilePath != "" {
		f, err := os.OpenFile(string(c.FilePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("logger: open log file: %w", err)
		}
		factory.file = f

		if c.LogRotate.MaxFileSizeMb > 0 {
			w = &lumberjack.Logger{
				Filename:   string(c.FilePath),
				MaxSize:    c.LogRotate.MaxFileSizeMb,
				MaxBackups: c.LogRotate.BackupFileCount,
				Compress:   c.LogRotate.Compress,
			}
		} else {
			w = f
		}
	}
	factory.sysWriter = w

	var programLevel = new(slog.LevelVar)
	setLoggingLevel(string(factory.level), programLevel)

	defaultLoggerFactory = factory
	defaultLogger = slog.New(factory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// SetLogFormat switches the default logger's rendering ("json", or text for
// anything else) without touching its destination or level.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format

	var programLevel = new(slog.LevelVar)
	setLoggingLevel(string(defaultLoggerFactory.level), programLevel)

	var w io.Writer = os.Stderr
	if defaultLoggerFactory.sysWriter != nil {
		w = defaultLoggerFactory.sysWriter
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch cfg.LogSeverity(level) {
	case cfg.TraceLogSeverity:
		programLevel.Set(LevelTrace)
	case cfg.DebugLogSeverity:
		programLevel.Set(LevelDebug)
	case cfg.InfoLogSeverity:
		programLevel.Set(LevelInfo)
	case cfg.WarningLogSeverity:
		programLevel.Set(LevelWarn)
	case cfg.ErrorLogSeverity:
		programLevel.Set(LevelError)
	case cfg.OffLogSeverity:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func levelName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severity"
				a.Value = slog.StringValue(levelName(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
			case slog.TimeKey:
				if f.format != "json" {
					a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func logAttrs(level slog.Level, format string, args ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Tracef logs at TRACE, the most verbose level, used for per-operation
// wire tracing (currently each mailstore append).
func Tracef(format string, args ...any) { logAttrs(LevelTrace, format, args...) }

// Debugf logs at DEBUG.
func Debugf(format string, args ...any) { logAttrs(LevelDebug, format, args...) }

// Infof logs at INFO.
func Infof(format string, args ...any) { logAttrs(LevelInfo, format, args...) }

// Warnf logs at WARNING.
func Warnf(format string, args ...any) { logAttrs(LevelWarn, format, args...) }

// Errorf logs at ERROR.
func Errorf(format string, args ...any) { logAttrs(LevelError, format, args...) }

// legacyWriter adapts stdlib log.Logger output lines into the default
// slog logger at a fixed level, so packages that only accept *log.Logger
// (jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger) still end up going
// through the same handler, file, and rotation as everything else.
type legacyWriter struct {
	level slog.Level
	tag   string
}

func (w *legacyWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	defaultLogger.Log(context.Background(), w.level, msg, slog.String("component", w.tag))
	return len(p), nil
}

// NewLegacyLogger returns a stdlib *log.Logger that forwards every line it
// is given to the default logger at level, prefixed for readability by a
// caller supplying their own prefix via the standard log flags.
func NewLegacyLogger(level slog.Level, prefix, tag string) *log.Logger {
	return log.New(&legacyWriter{level: level, tag: tag}, prefix, 0)
}
