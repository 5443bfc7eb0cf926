package models

import (
	"encoding/json"
	"time"
)

// ServerStatus is the computed liveness classification of a server.
type ServerStatus int

const (
	ServerUnknown  ServerStatus = 0
	ServerOnline   ServerStatus = 1
	ServerOffline  ServerStatus = 2
	ServerDegraded ServerStatus = 3
)

func (s ServerStatus) String() string {
	switch s {
	case ServerOnline:
		return "Online"
	case ServerOffline:
		return "Offline"
	case ServerDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// Server is a job host known to the service, keyed by server name.
// Created when first referenced by a log, execution or heartbeat.
type Server struct {
	ServerName               string          `json:"serverName" badgerhold:"key"`
	DisplayName              string          `json:"displayName,omitempty"`
	IPAddress                string          `json:"ipAddress,omitempty"`
	Status                   ServerStatus    `json:"status" badgerhold:"index"`
	LastHeartbeat            *time.Time      `json:"lastHeartbeat,omitempty"`
	HeartbeatIntervalSeconds int             `json:"heartbeatIntervalSeconds"`
	AgentVersion             string          `json:"agentVersion,omitempty"`
	AgentType                string          `json:"agentType,omitempty"`
	Metadata                 json.RawMessage `json:"metadata,omitempty"`
	IsActive                 bool            `json:"isActive" badgerhold:"index"`
	CreatedAt                time.Time       `json:"createdAt"`
	UpdatedAt                time.Time       `json:"updatedAt"`
}

// DefaultHeartbeatIntervalSeconds applies when an agent never declared its own.
const DefaultHeartbeatIntervalSeconds = 60

// ClassifyServer computes the status of a server at time now.
// Deterministic in (lastHeartbeat, interval, now).
func ClassifyServer(lastHeartbeat *time.Time, intervalSeconds int, now time.Time) ServerStatus {
	if lastHeartbeat == nil {
		return ServerUnknown
	}
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultHeartbeatIntervalSeconds
	}
	delta := now.Sub(*lastHeartbeat)
	interval := time.Duration(intervalSeconds) * time.Second
	switch {
	case delta > 3*interval:
		return ServerOffline
	case delta > 2*interval:
		return ServerDegraded
	default:
		return ServerOnline
	}
}
