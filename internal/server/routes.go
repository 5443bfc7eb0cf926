package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.WebSocketHandler)

	// API routes - Authentication
	mux.HandleFunc("/api/auth/login", s.app.AuthHandler.LoginHandler)
	mux.HandleFunc("/api/auth/refresh", s.app.AuthHandler.RefreshHandler)
	mux.HandleFunc("/api/auth/logout", s.app.AuthHandler.LogoutHandler)

	// API routes - Log ingestion and search
	mux.HandleFunc("/api/logs", s.app.LogHandler.IngestHandler)
	mux.HandleFunc("/api/logs/batch", s.app.LogHandler.IngestBatchHandler)
	mux.HandleFunc("/api/logs/search", s.app.LogHandler.SearchHandler)
	mux.HandleFunc("/api/logs/", s.app.LogHandler.GetLogHandler) // GET /{id}

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobItemRoute) // GET/DELETE /{id}

	// API routes - Executions
	mux.HandleFunc("/api/executions", s.handleExecutionsRoute)
	mux.HandleFunc("/api/executions/", s.app.ExecutionHandler.ItemHandler) // /{id}, /{id}/complete, /{id}/cancel

	// API routes - Servers (agent hosts)
	mux.HandleFunc("/api/heartbeat", s.app.ServerHandler.HeartbeatHandler)
	mux.HandleFunc("/api/servers", s.app.ServerHandler.ListServersHandler)
	mux.HandleFunc("/api/servers/", s.app.ServerHandler.ItemHandler) // GET/DELETE /{name}

	// API routes - Alerts
	mux.HandleFunc("/api/alerts", s.app.AlertHandler.CollectionHandler)
	mux.HandleFunc("/api/alerts/", s.app.AlertHandler.ItemHandler) // /{id}, /{id}/enable, /{id}/disable
	mux.HandleFunc("/api/alert-instances", s.app.AlertHandler.ListInstancesHandler)
	mux.HandleFunc("/api/alert-instances/", s.app.AlertHandler.InstanceActionHandler)

	// API routes - Dashboard
	mux.HandleFunc("/api/dashboard/summary", s.app.DashboardHandler.SummaryHandler)
	mux.HandleFunc("/api/dashboard/trend", s.app.DashboardHandler.TrendHandler)
	mux.HandleFunc("/api/dashboard/exceptions", s.app.DashboardHandler.TopExceptionsHandler)
	mux.HandleFunc("/api/dashboard/servers", s.app.DashboardHandler.ServerStatusHandler)

	// API routes - Administration
	mux.HandleFunc("/api/admin/retention", s.app.AdminHandler.RetentionHandler)
	mux.HandleFunc("/api/admin/apikeys", s.app.AdminHandler.APIKeysHandler)
	mux.HandleFunc("/api/admin/apikeys/", s.app.AdminHandler.RevokeAPIKeyHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs (list, register)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	case "POST", "PUT":
		s.app.JobHandler.UpsertJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobItemRoute routes /api/jobs/{id}
func (s *Server) handleJobItemRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r)
	case "DELETE":
		s.app.JobHandler.DeactivateJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExecutionsRoute routes /api/executions (list, start)
func (s *Server) handleExecutionsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ExecutionHandler.ListHandler(w, r)
	case "POST":
		s.app.ExecutionHandler.StartHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	http.NotFound(w, r)
}
