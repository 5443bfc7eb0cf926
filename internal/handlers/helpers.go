package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteAppError maps an error to the wire shape {code, message, details}.
// Unknown errors surface as INTERNAL with a generic message.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := common.AsAppError(err)
	_ = WriteJSON(w, appErr.Status, appErr)
}

// DecodeJSON decodes the request body into v, rejecting malformed payloads.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.ValidationError("malformed request body: %v", err)
	}
	return nil
}

// ClientIP resolves the caller address, honoring X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PathTail returns the path segment after the given prefix, with any further
// segments stripped. Empty when the path is the prefix itself.
func PathTail(r *http.Request, prefix string) string {
	tail := strings.TrimPrefix(r.URL.Path, prefix)
	tail = strings.Trim(tail, "/")
	if idx := strings.IndexByte(tail, '/'); idx >= 0 {
		tail = tail[:idx]
	}
	return tail
}

// QueryInt parses an integer query parameter, falling back on absence or garbage.
func QueryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}

// QueryBool parses a boolean query parameter.
func QueryBool(r *http.Request, name string) bool {
	raw := r.URL.Query().Get(name)
	b, _ := strconv.ParseBool(raw)
	return b
}

// QueryTime parses an RFC3339 query parameter. Nil when absent or invalid.
func QueryTime(r *http.Request, name string) *time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// QueryLevel parses a log level query parameter by number or name.
func QueryLevel(r *http.Request, name string) *models.LogLevel {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		level := models.LogLevel(n)
		if level.IsValid() {
			return &level
		}
		return nil
	}
	level, err := models.ParseLogLevel(raw)
	if err != nil {
		return nil
	}
	return &level
}

// PathID parses the numeric id segment after prefix.
func PathID(r *http.Request, prefix string) (uint64, error) {
	return pathIDFrom(r.URL.Path, prefix)
}

func pathIDFrom(path, prefix string) (uint64, error) {
	tail := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if idx := strings.IndexByte(tail, '/'); idx >= 0 {
		tail = tail[:idx]
	}
	if tail == "" {
		return 0, common.ValidationError("missing id in path")
	}
	id, err := strconv.ParseUint(tail, 10, 64)
	if err != nil {
		return 0, common.ValidationError("invalid id %q", tail)
	}
	return id, nil
}
