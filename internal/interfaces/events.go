package interfaces

import "context"

// EventType names a fan-out topic. Job- and execution-scoped log topics are
// built with the Topic helpers below.
type EventType string

const (
	EventDashboardSummary  EventType = "dashboard-summary"
	EventLogsAll           EventType = "logs.all"
	EventLogsErrors        EventType = "logs.errors"
	EventExecutionsRunning EventType = "executions.running"
	EventAlertsNew         EventType = "alerts.new"
	EventAlertsUpdates     EventType = "alerts.updates"
	EventServersStatus     EventType = "servers.status"
)

// TopicLogsJob returns the per-job log stream topic.
func TopicLogsJob(jobID string) EventType {
	return EventType("logs.job." + jobID)
}

// TopicLogsExecution returns the per-execution log stream topic.
func TopicLogsExecution(executionID string) EventType {
	return EventType("logs.execution." + executionID)
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll receives every published event regardless of type.
	// Used by the websocket hub, which filters per client topic.
	SubscribeAll(handler EventHandler) error

	// Publish an event to all subscribers (async)
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
