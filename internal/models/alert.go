package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// AlertType selects the condition shape an alert rule evaluates.
type AlertType int

const (
	AlertErrorThreshold     AlertType = 0
	AlertJobFailure         AlertType = 1
	AlertServerOffline      AlertType = 2
	AlertPerformanceWarning AlertType = 3
	AlertCustomQuery        AlertType = 4
	AlertPatternMatch       AlertType = 5
)

func (t AlertType) String() string {
	switch t {
	case AlertErrorThreshold:
		return "ErrorThreshold"
	case AlertJobFailure:
		return "JobFailure"
	case AlertServerOffline:
		return "ServerOffline"
	case AlertPerformanceWarning:
		return "PerformanceWarning"
	case AlertCustomQuery:
		return "CustomQuery"
	case AlertPatternMatch:
		return "PatternMatch"
	default:
		return "Unknown"
	}
}

// AlertSeverity ranks the operational weight of a rule and its instances.
type AlertSeverity int

const (
	SeverityLow      AlertSeverity = 0
	SeverityMedium   AlertSeverity = 1
	SeverityHigh     AlertSeverity = 2
	SeverityCritical AlertSeverity = 3
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Alert is a rule evaluated periodically by the alert engine.
type Alert struct {
	ID                   uint64          `json:"id" badgerhold:"key"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	AlertType            AlertType       `json:"alertType" badgerhold:"index"`
	Severity             AlertSeverity   `json:"severity"`
	Condition            json.RawMessage `json:"condition"`
	IsActive             bool            `json:"isActive" badgerhold:"index"`
	ThrottleMinutes      int             `json:"throttleMinutes"`
	LastTriggeredAt      *time.Time      `json:"lastTriggeredAt,omitempty"`
	TriggerCount         int64           `json:"triggerCount"`
	NotificationChannels json.RawMessage `json:"notificationChannels,omitempty"`
	JobID                string          `json:"jobId,omitempty" badgerhold:"index"`
	ServerName           string          `json:"serverName,omitempty" badgerhold:"index"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// Throttled reports whether the rule is still inside its throttle window.
func (a *Alert) Throttled(now time.Time) bool {
	if a.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*a.LastTriggeredAt) < time.Duration(a.ThrottleMinutes)*time.Minute
}

// InstanceStatus is the lifecycle state of a fired alert instance.
type InstanceStatus int

const (
	InstanceNew          InstanceStatus = 0
	InstanceAcknowledged InstanceStatus = 1
	InstanceResolved     InstanceStatus = 2
	InstanceSuppressed   InstanceStatus = 3
)

func (s InstanceStatus) String() string {
	switch s {
	case InstanceNew:
		return "New"
	case InstanceAcknowledged:
		return "Acknowledged"
	case InstanceResolved:
		return "Resolved"
	case InstanceSuppressed:
		return "Suppressed"
	default:
		return "Unknown"
	}
}

// AlertInstance is one firing of an alert rule.
type AlertInstance struct {
	ID                uint64          `json:"id" badgerhold:"key"`
	AlertID           uint64          `json:"alertId" badgerhold:"index"`
	TriggeredAt       time.Time       `json:"triggeredAt" badgerhold:"index"`
	Message           string          `json:"message"`
	Context           json.RawMessage `json:"context,omitempty"`
	JobID             string          `json:"jobId,omitempty"`
	JobExecutionID    uint64          `json:"jobExecutionId,omitempty"`
	ServerName        string          `json:"serverName,omitempty"`
	Severity          AlertSeverity   `json:"severity"`
	Status            InstanceStatus  `json:"status" badgerhold:"index"`
	AcknowledgedAt    *time.Time      `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy    string          `json:"acknowledgedBy,omitempty"`
	AcknowledgeNote   string          `json:"acknowledgeNote,omitempty"`
	ResolvedAt        *time.Time      `json:"resolvedAt,omitempty"`
	ResolvedBy        string          `json:"resolvedBy,omitempty"`
	ResolveNote       string          `json:"resolveNote,omitempty"`
	NotificationsSent json.RawMessage `json:"notificationsSent,omitempty"`
}

// Typed condition shapes, one per AlertType. Condition payloads are decoded
// at rule-write time and again at evaluation; a rule with a payload that no
// longer decodes is skipped and logged.

type ErrorThresholdCondition struct {
	Threshold     int64    `json:"threshold"`
	WindowMinutes int      `json:"windowMinutes"`
	Level         LogLevel `json:"level"`
}

type JobFailureCondition struct {
	Consecutive   int `json:"consecutive,omitempty"`
	WindowMinutes int `json:"windowMinutes,omitempty"`
}

type ServerOfflineCondition struct{}

type PerformanceWarningCondition struct {
	DurationMs   int64 `json:"durationMs,omitempty"`
	PercentOfAvg int   `json:"percentOfAvg,omitempty"`
}

// CustomQueryCondition is a constrained log-search filter, not free-form
// query text. Fires when the search matches at least one row.
type CustomQueryCondition struct {
	Query LogSearchFilter `json:"query"`
}

type PatternMatchCondition struct {
	Regex         string    `json:"regex"`
	WindowMinutes int       `json:"windowMinutes"`
	Level         *LogLevel `json:"level,omitempty"`
}

// AlertCondition is the decoded sum type over the six shapes. Exactly one
// field is non-nil, matching the rule's AlertType.
type AlertCondition struct {
	ErrorThreshold     *ErrorThresholdCondition
	JobFailure         *JobFailureCondition
	ServerOffline      *ServerOfflineCondition
	PerformanceWarning *PerformanceWarningCondition
	CustomQuery        *CustomQueryCondition
	PatternMatch       *PatternMatchCondition
}

// DecodeCondition parses and validates a condition payload for the given type.
func DecodeCondition(alertType AlertType, raw json.RawMessage) (*AlertCondition, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch alertType {
	case AlertErrorThreshold:
		var c ErrorThresholdCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode ErrorThreshold condition: %w", err)
		}
		if c.Threshold <= 0 {
			return nil, fmt.Errorf("ErrorThreshold condition requires threshold > 0")
		}
		if c.WindowMinutes <= 0 {
			return nil, fmt.Errorf("ErrorThreshold condition requires windowMinutes > 0")
		}
		if !c.Level.IsValid() {
			return nil, fmt.Errorf("ErrorThreshold condition has invalid level %d", c.Level)
		}
		return &AlertCondition{ErrorThreshold: &c}, nil
	case AlertJobFailure:
		var c JobFailureCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode JobFailure condition: %w", err)
		}
		if c.Consecutive < 0 {
			return nil, fmt.Errorf("JobFailure condition requires consecutive >= 0")
		}
		return &AlertCondition{JobFailure: &c}, nil
	case AlertServerOffline:
		var c ServerOfflineCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode ServerOffline condition: %w", err)
		}
		return &AlertCondition{ServerOffline: &c}, nil
	case AlertPerformanceWarning:
		var c PerformanceWarningCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode PerformanceWarning condition: %w", err)
		}
		if c.DurationMs <= 0 && c.PercentOfAvg <= 0 {
			return nil, fmt.Errorf("PerformanceWarning condition requires durationMs or percentOfAvg")
		}
		return &AlertCondition{PerformanceWarning: &c}, nil
	case AlertCustomQuery:
		var c CustomQueryCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode CustomQuery condition: %w", err)
		}
		return &AlertCondition{CustomQuery: &c}, nil
	case AlertPatternMatch:
		var c PatternMatchCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode PatternMatch condition: %w", err)
		}
		if c.Regex == "" {
			return nil, fmt.Errorf("PatternMatch condition requires regex")
		}
		if _, err := regexp.Compile(c.Regex); err != nil {
			return nil, fmt.Errorf("PatternMatch condition has invalid regex: %w", err)
		}
		if c.WindowMinutes <= 0 {
			return nil, fmt.Errorf("PatternMatch condition requires windowMinutes > 0")
		}
		if c.Level != nil && !c.Level.IsValid() {
			return nil, fmt.Errorf("PatternMatch condition has invalid level %d", *c.Level)
		}
		return &AlertCondition{PatternMatch: &c}, nil
	}
	return nil, fmt.Errorf("unknown alert type %d", alertType)
}
