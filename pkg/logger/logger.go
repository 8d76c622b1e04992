package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps LOG_LEVEL values to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	level       atomic.Int32
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

func New() *Logger {
	l := &Logger{}
	l.SetOutput(os.Stdout, os.Stderr)
	l.SetLevel(LevelInfo)
	return l
}

// SetOutput redirects info/debug lines to out and warn/error lines to errOut.
func (l *Logger) SetOutput(out, errOut io.Writer) {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	l.infoLogger = log.New(out, "INFO: ", flags)
	l.debugLogger = log.New(out, "DEBUG: ", flags)
	l.warnLogger = log.New(errOut, "WARN: ", flags)
	l.errorLogger = log.New(errOut, "ERROR: ", flags)
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.infoLogger.Printf(format, v...)
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.warnLogger.Printf(format, v...)
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.errorLogger.Printf(format, v...)
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.debugLogger.Printf(format, v...)
	}
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.errorLogger.Printf(format, v...)
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}
