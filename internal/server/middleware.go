package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/vigil/internal/handlers"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

const (
	ingestTimeout  = 5 * time.Second
	defaultTimeout = 30 * time.Second
)

// withMiddleware wraps the router with middleware chain
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = s.timeoutMiddleware(handler)
	handler = s.authMiddleware(handler)
	handler = s.maintenanceMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// withConditionalMiddleware applies middleware but bypasses most of it for
// WebSocket routes, which cannot tolerate wrapped response writers during the
// upgrade handshake.
func (s *Server) withConditionalMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")

			identity, err := s.resolveIdentity(r)
			if err != nil || identity == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			handler.ServeHTTP(w, handlers.WithIdentity(r, identity))
			return
		}

		s.withMiddleware(handler).ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logEvent := s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr)
		if r.URL.RawQuery != "" {
			logEvent.Str("query", r.URL.RawQuery)
		}
		logEvent.Msg("HTTP request")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("HTTP response")
	})
}

// corsMiddleware handles CORS headers for the dashboard
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// maintenanceMiddleware rejects ingestion while maintenance mode is set.
// Heartbeats stay accepted so server liveness tracking survives maintenance.
func (s *Server) maintenanceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.app.Config.System.MaintenanceMode && r.Method == "POST" && strings.HasPrefix(r.URL.Path, "/api/logs") {
			handlers.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "maintenance mode: ingestion temporarily disabled",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds request handling. Ingestion and heartbeats get a
// short deadline so a stalled store surfaces as 504 at the agent quickly.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := defaultTimeout
		if strings.HasPrefix(r.URL.Path, "/api/logs") && r.Method == "POST" || r.URL.Path == "/api/heartbeat" {
			timeout = ingestTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// publicRoutes require no credentials.
var publicRoutes = map[string]bool{
	"/api/auth/login":   true,
	"/api/auth/refresh": true,
	"/api/health":       true,
	"/api/version":      true,
}

// authMiddleware resolves the caller's identity and enforces the capability
// the route requires.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicRoutes[r.URL.Path] || r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := s.resolveIdentity(r)
		if err != nil {
			handlers.WriteAppError(w, err)
			return
		}
		if identity == nil {
			handlers.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}

		capability := requiredCapability(r.Method, r.URL.Path)
		if capability != "" && !identity.HasCapability(capability) {
			handlers.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
			return
		}

		next.ServeHTTP(w, handlers.WithIdentity(r, identity))
	})
}

// resolveIdentity checks for an API key first, then a bearer JWT. WebSocket
// clients may pass the credential as a token query parameter since browsers
// cannot set headers on upgrade requests.
func (s *Server) resolveIdentity(r *http.Request) (*interfaces.Identity, error) {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return s.app.AuthService.ValidateAPIKey(r.Context(), key)
	}

	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else if q := r.URL.Query().Get("token"); q != "" && r.URL.Path == "/ws" {
		token = q
	}
	if token == "" {
		return nil, nil
	}

	// Agents commonly put the API key in the bearer slot.
	if strings.HasPrefix(token, "vgk_") {
		return s.app.AuthService.ValidateAPIKey(r.Context(), token)
	}
	return s.app.AuthService.ValidateAccessToken(r.Context(), token)
}

// requiredCapability maps a route to the capability it requires. Unlisted
// authenticated routes default to read access.
func requiredCapability(method, path string) string {
	switch {
	case path == "/api/heartbeat":
		return models.CapHeartbeat
	case strings.HasPrefix(path, "/api/admin/"):
		return models.CapAdmin
	case strings.HasPrefix(path, "/api/logs") && method == "POST" && !strings.HasPrefix(path, "/api/logs/search"):
		return models.CapIngestLogs
	case path == "/api/executions" && method == "POST":
		return models.CapRunExecutions
	case strings.HasPrefix(path, "/api/executions/") && method == "POST":
		return models.CapRunExecutions
	case path == "/api/jobs" && (method == "POST" || method == "PUT"):
		return models.CapRegisterJobs
	case strings.HasPrefix(path, "/api/jobs/") && method == "DELETE":
		return models.CapAdmin
	case path == "/api/alerts" && method == "POST":
		return models.CapManageAlerts
	case strings.HasPrefix(path, "/api/alerts/") && method != "GET":
		return models.CapManageAlerts
	case strings.HasPrefix(path, "/api/alert-instances/") && method == "POST":
		return models.CapAckAlerts
	case strings.HasPrefix(path, "/api/servers/") && method == "DELETE":
		return models.CapAdmin
	case path == "/api/auth/logout":
		return "" // any authenticated caller may log out
	default:
		return models.CapRead
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker interface for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}
