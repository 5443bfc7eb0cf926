package models

import (
	"fmt"
	"strings"
)

// LogLevel is the numeric severity of a log entry.
type LogLevel int

const (
	LevelTrace    LogLevel = 0
	LevelDebug    LogLevel = 1
	LevelInfo     LogLevel = 2
	LevelWarning  LogLevel = 3
	LevelError    LogLevel = 4
	LevelCritical LogLevel = 5
)

// IsValid reports whether the level is within the accepted range.
func (l LogLevel) IsValid() bool {
	return l >= LevelTrace && l <= LevelCritical
}

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "Trace"
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Information"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// ParseLogLevel accepts level names as sent by agents ("warn", "Information")
// and returns the numeric level.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "verbose":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "information":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}
