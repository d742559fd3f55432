package cycle

import (
	"log/slog"
	"time"
)

// Level is the severity shown to the operator.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one step of a cycle as seen by the admin UI.
type LogEntry struct {
	Time    time.Time `json:"timestamp"`
	Level   Level     `json:"type"`
	Message string    `json:"message"`
	CycleID string    `json:"cycle_id"`
}

// Observer receives log entries as they are produced.
type Observer func(LogEntry)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
