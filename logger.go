package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = [...]func(a ...interface{}) string{
	DEBUG: color.New(color.FgMagenta).SprintFunc(),
	INFO:  color.New(color.FgHiBlue).SprintFunc(),
	WARN:  color.New(color.FgYellow).SprintFunc(),
	ERROR: color.New(color.FgRed).SprintFunc(),
	FATAL: color.New(color.FgRed, color.Bold).SprintFunc(),
}

func (l LogLevel) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// LogLevelFromString parses a level name case-insensitively; unknown names
// select INFO.
func LogLevelFromString(s string) LogLevel {
	for lvl, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(lvl)
		}
	}
	return INFO
}

// Logger writes levelled, coloured lines. When a status line is attached
// it is cleared before every log line so the two never share a row.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	log    *log.Logger
	status *StatusLine
	exit   func(int)
}

func NewLogger(out io.Writer, level LogLevel) *Logger {
	return &Logger{
		level: level,
		log:   log.New(out, "", 0),
		exit:  os.Exit,
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// RaiseLevel makes the logger at least as strict as level; it never
// lowers the current level.
func (l *Logger) RaiseLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		l.level = level
	}
}

// SetStatusLine attaches the in-place status line.
func (l *Logger) SetStatusLine(status *StatusLine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = status
}

func (l *Logger) print(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	if l.status != nil {
		l.status.Clear()
	}
	tag := levelColors[level]("[" + level.String() + "]")
	l.log.Printf("%s %s %s", tag, time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.print(DEBUG, format, args...) }

func (l *Logger) Info(format string, args ...interface{}) { l.print(INFO, format, args...) }

func (l *Logger) Warn(format string, args ...interface{}) { l.print(WARN, format, args...) }

func (l *Logger) Error(format string, args ...interface{}) { l.print(ERROR, format, args...) }

// Fatal logs regardless of level and exits with status 1.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.print(FATAL, format, args...)
	l.exit(1)
}

var appLogger *Logger

func init() {
	// Reconfigured from the command line in main.
	appLogger = NewLogger(os.Stderr, INFO)
}
