package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level defines the logging level
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	mu           sync.Mutex
	currentLevel Level
	out          io.Writer = os.Stdout
)

var tags = map[Level]string{
	LevelError: color.New(color.FgRed, color.Bold).Sprint("[Error]"),
	LevelWarn:  color.New(color.FgYellow).Sprint("[Warn]"),
	LevelInfo:  color.New(color.FgCyan).Sprint("[Info]"),
	LevelDebug: color.New(color.FgHiBlack).Sprint("[Debug]"),
}

func init() {
	// Production default: only errors
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = LevelError
	}
	currentLevel = level
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a Level.
// An empty string is the production default.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "":
		return LevelError, nil
	}
	return LevelError, fmt.Errorf("unknown log level: %s", s)
}

func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

// SetOutput redirects log lines, mostly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func Enabled(level Level) bool {
	return GetLevel() >= level
}

func logf(level Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if currentLevel < level {
		return
	}
	fmt.Fprintf(out, tags[level]+" "+format+"\n", args...)
}

func Errorf(format string, args ...interface{}) {
	logf(LevelError, format, args...)
}

func Warnf(format string, args ...interface{}) {
	logf(LevelWarn, format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(LevelInfo, format, args...)
}

func Debugf(format string, args ...interface{}) {
	logf(LevelDebug, format, args...)
}
