package models

import (
	"encoding/json"
	"time"
)

// LogEntry is a single structured log record pushed by an agent.
// Immutable after insert; removed only by retention.
type LogEntry struct {
	ID             uint64    `json:"id" badgerhold:"key"`
	Timestamp      time.Time `json:"timestamp" badgerhold:"index"`
	Partition      string    `json:"-" badgerhold:"index"` // YYYY-MM of Timestamp, used for range pruning
	Level          LogLevel  `json:"level" badgerhold:"index"`
	Message        string    `json:"message"`
	JobID          string    `json:"jobId,omitempty" badgerhold:"index"`
	JobExecutionID uint64    `json:"jobExecutionId,omitempty" badgerhold:"index"`
	ServerName     string    `json:"serverName" badgerhold:"index"`
	Category       string    `json:"category,omitempty"`
	SourceContext  string    `json:"sourceContext,omitempty"`
	CorrelationID  string    `json:"correlationId,omitempty" badgerhold:"index"`
	TraceID        string    `json:"traceId,omitempty" badgerhold:"index"`
	SpanID         string    `json:"spanId,omitempty"`
	ParentSpanID   string    `json:"parentSpanId,omitempty"`

	ExceptionType       string `json:"exceptionType,omitempty" badgerhold:"index"`
	ExceptionMessage    string `json:"exceptionMessage,omitempty"`
	ExceptionStackTrace string `json:"exceptionStackTrace,omitempty"`
	ExceptionSource     string `json:"exceptionSource,omitempty"`

	Properties         json.RawMessage `json:"properties,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	Environment        string          `json:"environment,omitempty"`
	ApplicationVersion string          `json:"applicationVersion,omitempty"`
	ReceivedAt         time.Time       `json:"receivedAt"`
	ClientIP           string          `json:"clientIp,omitempty"`
}

// HasException reports whether the entry carries exception detail.
func (e *LogEntry) HasException() bool {
	return e.ExceptionType != ""
}

// PartitionOf returns the month partition key for a timestamp.
func PartitionOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
