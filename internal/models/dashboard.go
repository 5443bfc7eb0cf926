package models

import (
	"encoding/json"
	"time"
)

// DashboardSummary is the aggregate snapshot shown on the dashboard landing view.
type DashboardSummary struct {
	TotalJobs          int64 `json:"totalJobs"`
	ActiveJobs         int64 `json:"activeJobs"`
	RunningExecutions  int64 `json:"runningExecutions"`
	ExecutionsToday    int64 `json:"executionsToday"`
	FailedToday        int64 `json:"failedToday"`
	SucceededToday     int64 `json:"succeededToday"`
	TotalServers       int64 `json:"totalServers"`
	OnlineServers      int64 `json:"onlineServers"`
	OfflineServers     int64 `json:"offlineServers"`
	DegradedServers    int64 `json:"degradedServers"`
	OpenAlertInstances int64 `json:"openAlertInstances"`
	LogsLastHour       int64 `json:"logsLastHour"`
	ErrorsLast24h      int64 `json:"errorsLast24h"`
	ComputedAt         time.Time `json:"computedAt"`
}

// HourlyTrendPoint is one hour bucket of log volume by severity.
type HourlyTrendPoint struct {
	Hour          time.Time `json:"hour"`
	TotalCount    int64     `json:"totalCount"`
	WarningCount  int64     `json:"warningCount"`
	ErrorCount    int64     `json:"errorCount"`
	CriticalCount int64     `json:"criticalCount"`
}

// TopException is one row of the top-exceptions view.
type TopException struct {
	ExceptionType string    `json:"exceptionType"`
	Count         int64     `json:"count"`
	LastSeen      time.Time `json:"lastSeen"`
	SampleMessage string    `json:"sampleMessage,omitempty"`
}

// ServerStatusItem is one row of the dashboard server list.
type ServerStatusItem struct {
	ServerName    string       `json:"serverName"`
	DisplayName   string       `json:"displayName,omitempty"`
	Status        ServerStatus `json:"status"`
	StatusName    string       `json:"statusName"`
	LastHeartbeat *time.Time   `json:"lastHeartbeat,omitempty"`
	AgentVersion  string       `json:"agentVersion,omitempty"`
}

// DashboardCacheEntry is a store-backed cache row keyed by view name.
type DashboardCacheEntry struct {
	Key        string          `json:"key" badgerhold:"key"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Expired reports whether the cache row is past its TTL at now.
func (e *DashboardCacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
