package models

import (
	"encoding/json"
	"time"
)

// JobType classifies how the agent runs the job.
type JobType int

const (
	JobTypeUnknown        JobType = 0
	JobTypeExecutable     JobType = 1
	JobTypePowerShell     JobType = 2
	JobTypeVBScript       JobType = 3
	JobTypeDotNetAssembly JobType = 4
	JobTypeSqlJob         JobType = 5
	JobTypeWindowsService JobType = 6
	JobTypeOther          JobType = 7
)

func (t JobType) String() string {
	switch t {
	case JobTypeExecutable:
		return "Executable"
	case JobTypePowerShell:
		return "PowerShell"
	case JobTypeVBScript:
		return "VBScript"
	case JobTypeDotNetAssembly:
		return "DotNetAssembly"
	case JobTypeSqlJob:
		return "SqlJob"
	case JobTypeWindowsService:
		return "WindowsService"
	case JobTypeOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// Job is a registered batch job, keyed by the agent-chosen job id.
// Created on first reference (upsert or autovivification).
type Job struct {
	JobID          string   `json:"jobId" badgerhold:"key"`
	DisplayName    string   `json:"displayName"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category,omitempty" badgerhold:"index"`
	Tags           []string `json:"tags,omitempty"`
	JobType        JobType  `json:"jobType"`
	ServerName     string   `json:"serverName,omitempty" badgerhold:"index"`
	ExecutablePath string   `json:"executablePath,omitempty"`
	Schedule       string   `json:"schedule,omitempty"` // cron-like, opaque to the service
	IsActive       bool     `json:"isActive" badgerhold:"index"`
	IsCritical     bool     `json:"isCritical"`

	// Overlap policy: when false, StartExecution rejects while a
	// Pending/Running execution exists for this job.
	AllowConcurrent bool `json:"allowConcurrent"`

	LastExecutionID         uint64          `json:"lastExecutionId,omitempty"`
	LastExecutionAt         *time.Time      `json:"lastExecutionAt,omitempty"`
	LastExecutionStatus     ExecutionStatus `json:"lastExecutionStatus"`
	LastExecutionDurationMs int64           `json:"lastExecutionDurationMs,omitempty"`

	TotalExecutions     int64 `json:"totalExecutions"`
	SuccessCount        int64 `json:"successCount"`
	FailureCount        int64 `json:"failureCount"`
	CompletedExecutions int64 `json:"completedExecutions"` // denominator for AvgDurationMs
	AvgDurationMs       int64 `json:"avgDurationMs"`

	ExpectedDurationMs int64 `json:"expectedDurationMs,omitempty"`
	MaxDurationMs      int64 `json:"maxDurationMs,omitempty"`

	Configuration json.RawMessage `json:"configuration,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}
