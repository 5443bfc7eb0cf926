package models

import (
	"encoding/json"
	"time"
)

// Role maps to a fixed capability set.
type Role string

const (
	RoleViewer        Role = "viewer"
	RoleOperator      Role = "operator"
	RoleAdministrator Role = "administrator"
	RoleService       Role = "service"
)

// Capability names checked by route middleware.
const (
	CapRead          = "read"
	CapAckAlerts     = "alerts:ack"
	CapManageAlerts  = "alerts:manage"
	CapRunExecutions = "executions:run"
	CapIngestLogs    = "logs:write"
	CapHeartbeat     = "heartbeat:write"
	CapRegisterJobs  = "jobs:register"
	CapAdmin         = "admin"
)

// Capabilities returns the capability set for a role.
func (r Role) Capabilities() []string {
	switch r {
	case RoleViewer:
		return []string{CapRead}
	case RoleOperator:
		return []string{CapRead, CapAckAlerts, CapRunExecutions}
	case RoleAdministrator:
		return []string{CapRead, CapAckAlerts, CapManageAlerts, CapRunExecutions,
			CapIngestLogs, CapHeartbeat, CapRegisterJobs, CapAdmin}
	case RoleService:
		return []string{CapIngestLogs, CapHeartbeat, CapRegisterJobs, CapRunExecutions}
	}
	return nil
}

// HasCapability reports whether the role grants the named capability.
func (r Role) HasCapability(cap string) bool {
	for _, c := range r.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

// User is an operator account.
type User struct {
	ID            string     `json:"id" badgerhold:"key"`
	Username      string     `json:"username" badgerhold:"index"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	SecurityStamp string     `json:"-"` // rotated on password change to invalidate tokens
	FailedLogins  int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// LockedAt reports whether the account is locked out at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// APIKey is a scoped agent credential. Only the SHA-256 hash is stored.
type APIKey struct {
	ID         string     `json:"id" badgerhold:"key"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-" badgerhold:"index"`
	Scopes     []string   `json:"scopes"`
	ServerName string     `json:"serverName,omitempty"` // restricts the key to one agent host
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// HasScope reports whether the key grants the named scope.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RefreshToken is an opaque long-lived credential, stored hashed.
type RefreshToken struct {
	TokenHash string     `json:"-" badgerhold:"key"`
	UserID    string     `json:"userId" badgerhold:"index"`
	ExpiresAt time.Time  `json:"expiresAt" badgerhold:"index"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Valid reports whether the token is usable at now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// AuditLog records auth events and operator mutations.
type AuditLog struct {
	ID        uint64          `json:"id" badgerhold:"key"`
	Timestamp time.Time       `json:"timestamp" badgerhold:"index"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action" badgerhold:"index"`
	Target    string          `json:"target,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	ClientIP  string          `json:"clientIp,omitempty"`
}
