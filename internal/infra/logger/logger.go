package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// sink is shared between a Logger and every component logger derived from it.
type sink struct {
	mu     sync.Mutex
	file   *log.Logger
	stdout io.Writer
	closer io.Closer
}

type Logger struct {
	sink      *sink
	level     Level
	component string
}

func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	s := &sink{file: log.New(f, "", 0), closer: f}
	if includeStdout {
		s.stdout = os.Stdout
	}

	return &Logger{sink: s, level: level}, nil
}

// NewWithWriter logs to w only. Used by tests and by the CLI when no log file is wanted.
func NewWithWriter(w io.Writer, level Level) *Logger {
	return &Logger{sink: &sink{file: log.New(w, "", 0)}, level: level}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelFatal+1)
}

// Component returns a logger that tags every line with name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{sink: l.sink, level: l.level, component: name}
}

func (l *Logger) Close() error {
	if l.sink.closer == nil {
		return nil
	}
	return l.sink.closer.Close()
}

func (l *Logger) log(lvl Level, prefix string, format string, v ...interface{}) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		msg = fmt.Sprintf("(%s) %s", l.component, msg)
	}
	fullMsg := fmt.Sprintf("%s [%s] %s", timestamp, prefix, msg)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.file.Println(fullMsg)

	// Debug stays out of stdout so it doesn't break the CLI progress bar
	if l.sink.stdout != nil && lvl >= LevelInfo {
		fmt.Fprintf(l.sink.stdout, "\n%s", fullMsg)
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

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
