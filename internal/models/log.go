package models

import "time"

// LogLevel classifies a log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
	LogLevelDeploy  LogLevel = "deploy"
)

// Valid reports whether l is a known log level.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelSuccess, LogLevelDeploy:
		return true
	}
	return false
}

// LogEntry represents a single persisted log line for a build.
type LogEntry struct {
	ID        string    `json:"id"`
	BuildID   string    `json:"build_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
