// Package logger provides leveled logging in text or JSON-lines format.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "fatal"
	}
}

// ParseLevel maps a level name to a Level. Unknown names map to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger

	mu  sync.Mutex
	out io.Writer
}

var defaultLogger *Logger

// Init initializes the default logger on stderr with the specified level and format
// ("text" or "json").
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter initializes the default logger on w.
func InitWriter(w io.Writer, level string, format string) {
	jsonFormat := strings.ToLower(format) == "json"

	flags := log.LstdFlags | log.Lmicroseconds
	if !jsonFormat {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   jsonFormat,
		logger: log.New(w, "", flags),
		out:    w,
	}
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func output(l Level, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > l {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if !defaultLogger.json {
		_ = defaultLogger.logger.Output(3, "["+strings.ToUpper(l.String())+"] "+msg)
		return
	}
	line, err := json.Marshal(jsonLine{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: l.String(),
		Msg:   msg,
	})
	if err != nil {
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	_, _ = defaultLogger.out.Write(append(line, '\n'))
}

func Debug(format string, args ...interface{}) {
	output(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	output(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	output(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	output(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger == nil {
		InitWriter(os.Stderr, "error", "text")
	}
	output(FatalLevel, format, args...)
	os.Exit(1)
}
