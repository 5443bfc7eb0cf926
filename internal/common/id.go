package common

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewCorrelationID generates a 12-hex-character correlation ID for
// grouping related log entries across jobs and executions.
func NewCorrelationID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// Fall back to a uuid fragment; rand.Read failing means the
		// system entropy source is broken anyway.
		return uuid.New().String()[:12]
	}
	return hex.EncodeToString(b)
}

// NewInstanceID generates a unique server instance ID. Sent to websocket
// clients on welcome so they can detect restarts.
func NewInstanceID() string {
	return uuid.New().String()
}

// NewAPIKeyID generates a unique API key record ID with the "key_" prefix
func NewAPIKeyID() string {
	return "key_" + uuid.New().String()
}
