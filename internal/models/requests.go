package models

import (
	"encoding/json"
	"time"
)

// CreateLogRequest is one inbound log entry from an agent.
type CreateLogRequest struct {
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
	Level          LogLevel        `json:"level"`
	Message        string          `json:"message" validate:"required,max=4000"`
	JobID          string          `json:"jobId,omitempty" validate:"max=200"`
	JobExecutionID uint64          `json:"jobExecutionId,omitempty"`
	ServerName     string          `json:"serverName" validate:"required,max=200"`
	Category       string          `json:"category,omitempty" validate:"max=200"`
	SourceContext  string          `json:"sourceContext,omitempty" validate:"max=500"`
	CorrelationID  string          `json:"correlationId,omitempty" validate:"max=100"`
	TraceID        string          `json:"traceId,omitempty" validate:"max=100"`
	SpanID         string          `json:"spanId,omitempty" validate:"max=100"`
	ParentSpanID   string          `json:"parentSpanId,omitempty" validate:"max=100"`
	Exception      *ExceptionInfo  `json:"exception,omitempty"`
	Properties     json.RawMessage `json:"properties,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Environment    string          `json:"environment,omitempty" validate:"max=100"`
	AppVersion     string          `json:"applicationVersion,omitempty" validate:"max=100"`
}

// ExceptionInfo is the optional exception block of a log entry.
type ExceptionInfo struct {
	Type       string `json:"type" validate:"max=500"`
	Message    string `json:"message" validate:"max=4000"`
	StackTrace string `json:"stackTrace,omitempty"`
	Source     string `json:"source,omitempty" validate:"max=500"`
}

// LogIngestionResult acknowledges a single accepted entry.
type LogIngestionResult struct {
	ID         uint64    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// BatchRejection explains why one entry of a batch was rejected.
type BatchRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchLogResult summarizes a batch ingest.
type BatchLogResult struct {
	AcceptedCount int              `json:"acceptedCount"`
	RejectedCount int              `json:"rejectedCount"`
	Rejections    []BatchRejection `json:"rejections,omitempty"`
}

// Sort columns accepted by log search.
const (
	SortByTimestamp = "Timestamp"
	SortByLevel     = "Level"
	SortAsc         = "Asc"
	SortDesc        = "Desc"
)

// LogSearchFilter is the query surface over stored log entries.
// All filters are optional and combined with AND.
type LogSearchFilter struct {
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
	JobID          string     `json:"jobId,omitempty"`
	JobExecutionID uint64     `json:"jobExecutionId,omitempty"`
	ServerName     string     `json:"serverName,omitempty"`
	MinLevel       *LogLevel  `json:"minLevel,omitempty"`
	MaxLevel       *LogLevel  `json:"maxLevel,omitempty"`
	SearchText     string     `json:"searchText,omitempty"`
	ExceptionType  string     `json:"exceptionType,omitempty"`
	CorrelationID  string     `json:"correlationId,omitempty"`
	HasException   *bool      `json:"hasException,omitempty"`
	Tag            string     `json:"tag,omitempty"`
	Page           int        `json:"page,omitempty"`
	PageSize       int        `json:"pageSize,omitempty"`
	SortColumn     string     `json:"sortColumn,omitempty"`
	SortDirection  string     `json:"sortDirection,omitempty"`
}

// Normalize applies the documented defaults: last 24h window, page 1,
// page size 50 capped at 1000, timestamp-descending order.
func (f *LogSearchFilter) Normalize(now time.Time) {
	if f.End == nil {
		end := now
		f.End = &end
	}
	if f.Start == nil {
		start := f.End.Add(-24 * time.Hour)
		f.Start = &start
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 1000 {
		f.PageSize = 1000
	}
	if f.SortColumn != SortByLevel {
		f.SortColumn = SortByTimestamp
	}
	if f.SortDirection != SortAsc {
		f.SortDirection = SortDesc
	}
}

// LogSearchResult is one page of search hits.
type LogSearchResult struct {
	Items      []LogEntry `json:"items"`
	TotalCount int64      `json:"totalCount"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
}

// LogDetailResponse is a single entry plus its correlated siblings.
type LogDetailResponse struct {
	Entry      LogEntry   `json:"entry"`
	Correlated []LogEntry `json:"correlated,omitempty"`
}

// UpsertJobRequest registers or updates a job definition.
type UpsertJobRequest struct {
	JobID              string          `json:"jobId" validate:"required,max=200"`
	DisplayName        string          `json:"displayName,omitempty" validate:"max=500"`
	Description        string          `json:"description,omitempty" validate:"max=4000"`
	Category           string          `json:"category,omitempty" validate:"max=200"`
	Tags               []string        `json:"tags,omitempty"`
	JobType            JobType         `json:"jobType,omitempty"`
	ServerName         string          `json:"serverName,omitempty" validate:"max=200"`
	ExecutablePath     string          `json:"executablePath,omitempty" validate:"max=1000"`
	Schedule           string          `json:"schedule,omitempty" validate:"max=200"`
	IsActive           *bool           `json:"isActive,omitempty"`
	IsCritical         *bool           `json:"isCritical,omitempty"`
	AllowConcurrent    *bool           `json:"allowConcurrent,omitempty"`
	ExpectedDurationMs int64           `json:"expectedDurationMs,omitempty"`
	MaxDurationMs      int64           `json:"maxDurationMs,omitempty"`
	Configuration      json.RawMessage `json:"configuration,omitempty"`
}

// JobListFilter selects jobs for the list endpoint.
type JobListFilter struct {
	ServerName string   `json:"serverName,omitempty"`
	Category   string   `json:"category,omitempty"`
	IsActive   *bool    `json:"isActive,omitempty"`
	JobType    *JobType `json:"jobType,omitempty"`
	Page       int      `json:"page,omitempty"`
	PageSize   int      `json:"pageSize,omitempty"`
}

// JobDetailResponse is a job plus its most recent executions.
type JobDetailResponse struct {
	Job              Job            `json:"job"`
	RecentExecutions []JobExecution `json:"recentExecutions"`
}

// StartExecutionRequest begins a new run of a job.
type StartExecutionRequest struct {
	JobID         string          `json:"jobId" validate:"required,max=200"`
	ServerName    string          `json:"serverName" validate:"required,max=200"`
	TriggerType   string          `json:"triggerType,omitempty" validate:"max=100"`
	TriggeredBy   string          `json:"triggeredBy,omitempty" validate:"max=200"`
	CorrelationID string          `json:"correlationId,omitempty" validate:"max=100"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
}

// StartExecutionResult acknowledges a started execution.
type StartExecutionResult struct {
	ExecutionID   uint64    `json:"executionId"`
	CorrelationID string    `json:"correlationId"`
	JobID         string    `json:"jobId"`
	ServerName    string    `json:"serverName"`
	StartedAt     time.Time `json:"startedAt"`
}

// CompleteExecutionRequest finishes a run with a terminal status.
type CompleteExecutionRequest struct {
	Status        ExecutionStatus `json:"status"`
	ResultSummary json.RawMessage `json:"resultSummary,omitempty"`
	ResultCode    string          `json:"resultCode,omitempty" validate:"max=100"`
	ErrorMessage  string          `json:"errorMessage,omitempty" validate:"max=4000"`
	ErrorCategory string          `json:"errorCategory,omitempty" validate:"max=200"`
}

// CancelExecutionRequest aborts a pending or running execution.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=4000"`
}

// ExecutionListFilter selects executions for the list endpoint.
type ExecutionListFilter struct {
	JobID    string           `json:"jobId,omitempty"`
	Status   *ExecutionStatus `json:"status,omitempty"`
	Page     int              `json:"page,omitempty"`
	PageSize int              `json:"pageSize,omitempty"`
}

// HeartbeatRequest asserts agent liveness.
type HeartbeatRequest struct {
	ServerName               string          `json:"serverName" validate:"required,max=200"`
	IPAddress                string          `json:"ipAddress,omitempty" validate:"max=100"`
	AgentVersion             string          `json:"agentVersion,omitempty" validate:"max=100"`
	AgentType                string          `json:"agentType,omitempty" validate:"max=100"`
	HeartbeatIntervalSeconds int             `json:"heartbeatIntervalSeconds,omitempty"`
	Metadata                 json.RawMessage `json:"metadata,omitempty"`
}

// ServerStatusResponse is a server with its computed status name.
type ServerStatusResponse struct {
	Server     Server `json:"server"`
	StatusName string `json:"statusName"`
}

// UpsertAlertRequest creates or updates an alert rule.
type UpsertAlertRequest struct {
	Name                 string          `json:"name" validate:"required,max=200"`
	Description          string          `json:"description,omitempty" validate:"max=4000"`
	AlertType            AlertType       `json:"alertType"`
	Severity             AlertSeverity   `json:"severity"`
	Condition            json.RawMessage `json:"condition" validate:"required"`
	IsActive             *bool           `json:"isActive,omitempty"`
	ThrottleMinutes      *int            `json:"throttleMinutes,omitempty"`
	NotificationChannels json.RawMessage `json:"notificationChannels,omitempty"`
	JobID                string          `json:"jobId,omitempty" validate:"max=200"`
	ServerName           string          `json:"serverName,omitempty" validate:"max=200"`
}

// InstanceActionRequest acknowledges or resolves alert instances.
type InstanceActionRequest struct {
	Note string   `json:"note,omitempty" validate:"max=4000"`
	IDs  []uint64 `json:"ids,omitempty"` // bulk variant; single id comes from the path
}

// RetentionRequest triggers a maintenance run.
type RetentionRequest struct {
	DryRun    bool `json:"dryRun,omitempty"`
	BatchSize int  `json:"batchSize,omitempty"`
}

// RetentionResult reports what a maintenance run deleted (or would delete).
type RetentionResult struct {
	DryRun         bool             `json:"dryRun"`
	CategoryCounts map[string]int64 `json:"categoryCounts,omitempty"`
	DeletedCount   int64            `json:"deletedCount"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
}

// LoginRequest authenticates an operator.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=200"`
	Password string `json:"password" validate:"required,max=500"`
}

// LoginResponse carries the token pair.
type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// CreateAPIKeyRequest provisions a scoped agent key.
type CreateAPIKeyRequest struct {
	Name       string   `json:"name" validate:"required,max=200"`
	Scopes     []string `json:"scopes" validate:"required,min=1"`
	ServerName string   `json:"serverName,omitempty" validate:"max=200"`
}

// CreateAPIKeyResponse returns the plaintext key exactly once.
type CreateAPIKeyResponse struct {
	ID     string   `json:"id"`
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// SystemStatusResponse is the operational health snapshot.
type SystemStatusResponse struct {
	Version         string    `json:"version"`
	InstanceID      string    `json:"instanceId"`
	StartedAt       time.Time `json:"startedAt"`
	UptimeSeconds   int64     `json:"uptimeSeconds"`
	BufferDepth     int       `json:"bufferDepth"`
	BufferCapacity  int       `json:"bufferCapacity"`
	SubscriberCount int       `json:"subscriberCount"`
	MaintenanceMode bool      `json:"maintenanceMode"`
	LogPartitions   []string  `json:"logPartitions,omitempty"`
}
