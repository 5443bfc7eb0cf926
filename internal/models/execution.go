package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a job execution.
type ExecutionStatus int

const (
	ExecutionPending   ExecutionStatus = 0
	ExecutionRunning   ExecutionStatus = 1
	ExecutionCompleted ExecutionStatus = 2
	ExecutionFailed    ExecutionStatus = 3
	ExecutionCancelled ExecutionStatus = 4
	ExecutionTimeout   ExecutionStatus = 5
	ExecutionWarning   ExecutionStatus = 6
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionPending:
		return "Pending"
	case ExecutionRunning:
		return "Running"
	case ExecutionCompleted:
		return "Completed"
	case ExecutionFailed:
		return "Failed"
	case ExecutionCancelled:
		return "Cancelled"
	case ExecutionTimeout:
		return "Timeout"
	case ExecutionWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status ends the execution lifecycle.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionPending && s != ExecutionRunning
}

// IsValid reports whether the status is a defined lifecycle state.
func (s ExecutionStatus) IsValid() bool {
	return s >= ExecutionPending && s <= ExecutionWarning
}

// CountsAsFailure reports whether the terminal status increments the
// parent job's failure counter.
func (s ExecutionStatus) CountsAsFailure() bool {
	return s == ExecutionFailed || s == ExecutionTimeout
}

// HasMeasuredDuration reports whether the terminal status contributes to
// the job's average duration. Cancelled executions do not.
func (s ExecutionStatus) HasMeasuredDuration() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionTimeout, ExecutionWarning:
		return true
	}
	return false
}

// JobExecution is one attempted run of a Job.
type JobExecution struct {
	ID            uint64          `json:"id" badgerhold:"key"`
	JobID         string          `json:"jobId" badgerhold:"index"`
	StartedAt     time.Time       `json:"startedAt" badgerhold:"index"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	DurationMs    int64           `json:"durationMs,omitempty"`
	Status        ExecutionStatus `json:"status" badgerhold:"index"`
	ServerName    string          `json:"serverName" badgerhold:"index"`
	TriggerType   string          `json:"triggerType,omitempty"`
	TriggeredBy   string          `json:"triggeredBy,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty" badgerhold:"index"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	ResultSummary json.RawMessage `json:"resultSummary,omitempty"`
	ResultCode    string          `json:"resultCode,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	ErrorCategory string          `json:"errorCategory,omitempty"`

	// Per-level log counters, reconciled by the ingestion flush cycle.
	TraceLogCount    int64 `json:"traceLogCount"`
	DebugLogCount    int64 `json:"debugLogCount"`
	InfoLogCount     int64 `json:"infoLogCount"`
	WarningLogCount  int64 `json:"warningLogCount"`
	ErrorLogCount    int64 `json:"errorLogCount"`
	CriticalLogCount int64 `json:"criticalLogCount"`
	LogCount         int64 `json:"logCount"`
}

// AddLogCounts applies a per-level delta to the execution's counters.
func (e *JobExecution) AddLogCounts(counts map[LogLevel]int64) {
	for level, n := range counts {
		switch level {
		case LevelTrace:
			e.TraceLogCount += n
		case LevelDebug:
			e.DebugLogCount += n
		case LevelInfo:
			e.InfoLogCount += n
		case LevelWarning:
			e.WarningLogCount += n
		case LevelError:
			e.ErrorLogCount += n
		case LevelCritical:
			e.CriticalLogCount += n
		}
		e.LogCount += n
	}
}
