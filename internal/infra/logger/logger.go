package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

type Logger struct {
	entry         *logrus.Entry
	level         Level
	includeStdout bool
}

// New writes every record to filePath and, when includeStdout is set,
// echoes Info and above to stdout.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return newLogger(f, level, includeStdout), nil
}

// NewWriter logs to w only. Used by tests and by the emulator.
func NewWriter(w io.Writer, level Level) *Logger {
	return newLogger(w, level, false)
}

// NewNop discards everything.
func NewNop() *Logger {
	return newLogger(io.Discard, LevelFatal, false)
}

func newLogger(w io.Writer, level Level, includeStdout bool) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.TraceLevel) // filtering happens in log()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	return &Logger{
		entry:         logrus.NewEntry(base),
		level:         level,
		includeStdout: includeStdout,
	}
}

// With returns a logger that tags every record with key=value.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		entry:         l.entry.WithField(key, value),
		level:         l.level,
		includeStdout: l.includeStdout,
	}
}

func (l *Logger) log(lvl Level, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}

	msg := fmt.Sprintf(format, v...)

	switch lvl {
	case LevelDebug:
		l.entry.Debug(msg)
	case LevelInfo:
		l.entry.Info(msg)
	case LevelWarn:
		l.entry.Warn(msg)
	default:
		l.entry.Error(msg)
	}

	// Debug stays out of stdout so it does not break the progress line
	if l.includeStdout && lvl >= LevelInfo {
		fmt.Printf("\n[%s] %s", levelName(lvl), msg)
	}
}

func levelName(lvl Level) string {
	switch lvl {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "FATAL"
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
