package logger

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is a thin wrapper around the standard library logger that adds a
// level and an optional chat tag to every line.
type Logger struct {
	*log.Logger
	tag string
}

// New creates a new logger. The tag (usually a chat ID or a component name)
// may be empty.
func New(tag string) *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", 0),
		tag:    tag,
	}
}

func (l *Logger) formatMessage(level, format string, v ...interface{}) string {
	timestamp := time.Now().Format(time.RFC3339)
	message := fmt.Sprintf(format, v...)

	if l.tag != "" {
		return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, level, l.tag, message)
	}

	return fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.Logger.Println(l.formatMessage("INFO", format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.Logger.Println(l.formatMessage("ERROR", format, v...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.Logger.Println(l.formatMessage("DEBUG", format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.Logger.Println(l.formatMessage("WARN", format, v...))
}

// Global logger instance for application-wide logging
var Global = New("")
