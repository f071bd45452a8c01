package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// Options configures a Logger.
type Options struct {
	Level      string // "debug", "info", "warn", "error"
	JSONFormat bool
	ToFile     bool
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes leveled log lines to stdout, optionally mirrored to a
// rotated file. With JSONFormat set, every line is a structured entry.
type Logger struct {
	level      Level
	jsonFormat bool
	mu         sync.Mutex
	out        io.Writer
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New creates a logger from the given options. Unset rotation options fall
// back to 100 MB / 7 backups / 30 days.
func New(opts Options) *Logger {
	var out io.Writer = os.Stdout
	if opts.ToFile && opts.FilePath != "" {
		if dir := filepath.Dir(opts.FilePath); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 7),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}

	return &Logger{
		level:      ParseLevel(opts.Level),
		jsonFormat: opts.JSONFormat,
		out:        out,
	}
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Debug(format string, v ...any) { l.log(LevelDebug, nil, format, v...) }
func (l *Logger) Info(format string, v ...any)  { l.log(LevelInfo, nil, format, v...) }
func (l *Logger) Warn(format string, v ...any)  { l.log(LevelWarn, nil, format, v...) }
func (l *Logger) Error(format string, v ...any) { l.log(LevelError, nil, format, v...) }

// WithFields emits a message with structured fields attached. In text mode
// the fields are appended to the line.
func (l *Logger) WithFields(level Level, message string, fields map[string]any) {
	l.log(level, fields, "%s", message)
}

func (l *Logger) log(level Level, fields map[string]any, format string, v ...any) {
	if level < l.level {
		return
	}

	message := format
	if len(v) > 0 {
		message = fmt.Sprintf(format, v...)
	}

	var line string
	if l.jsonFormat {
		data, err := json.Marshal(entry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     levelNames[level],
			Message:   message,
			Fields:    fields,
		})
		if err != nil {
			line = fmt.Sprintf("[%s] %s", levelNames[level], message)
		} else {
			line = string(data)
		}
	} else {
		line = fmt.Sprintf("%s [%s] %s", time.Now().Format("2006/01/02 15:04:05"), levelNames[level], message)
		if len(fields) > 0 {
			line = fmt.Sprintf("%s %v", line, fields)
		}
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, line)
	l.mu.Unlock()
}
