package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// IngestService - accepts, validates, buffers and flushes log entries
type IngestService interface {
	IngestLog(ctx context.Context, req *models.CreateLogRequest, clientIP string) (*models.LogIngestionResult, error)
	IngestBatch(ctx context.Context, reqs []*models.CreateLogRequest, clientIP string) (*models.BatchLogResult, error)
	// BufferDepth reports the number of buffered, not yet flushed entries.
	BufferDepth() int
	BufferCapacity() int
	// Flush drains the buffer synchronously. Used on shutdown and in tests.
	Flush(ctx context.Context) error
	Start() error
	Stop() error
}

// ExecutionService - execution lifecycle and job stats rollup
type ExecutionService interface {
	StartExecution(ctx context.Context, req *models.StartExecutionRequest) (*models.StartExecutionResult, error)
	CompleteExecution(ctx context.Context, executionID uint64, req *models.CompleteExecutionRequest) (*models.JobExecution, error)
	CancelExecution(ctx context.Context, executionID uint64, reason string) (*models.JobExecution, error)
	GetExecution(ctx context.Context, executionID uint64) (*models.JobExecution, error)
	ListExecutions(ctx context.Context, filter *models.ExecutionListFilter) ([]models.JobExecution, int64, error)
	// SweepTimeouts transitions running executions past their job's
	// maxDurationMs to Timeout. Returns the number transitioned.
	SweepTimeouts(ctx context.Context) (int, error)
}

// JobService - job registration and queries
type JobService interface {
	UpsertJob(ctx context.Context, req *models.UpsertJobRequest, actor string) (*models.Job, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	GetJobDetail(ctx context.Context, jobID string) (*models.JobDetailResponse, error)
	ListJobs(ctx context.Context, filter *models.JobListFilter) ([]models.Job, int64, error)
	DeactivateJob(ctx context.Context, jobID string) error
}

// HeartbeatService - heartbeat processing and status classification
type HeartbeatService interface {
	ProcessHeartbeat(ctx context.Context, req *models.HeartbeatRequest) (*models.Server, error)
	GetServer(ctx context.Context, serverName string) (*models.Server, error)
	ListServers(ctx context.Context, activeOnly bool) ([]models.Server, error)
	DeactivateServer(ctx context.Context, serverName string) error
	// Sweep reclassifies all active servers and emits status-change events.
	// Returns the number of servers whose status changed.
	Sweep(ctx context.Context) (int, error)
}

// AlertService - rule CRUD, evaluation and instance lifecycle
type AlertService interface {
	CreateAlert(ctx context.Context, req *models.UpsertAlertRequest) (*models.Alert, error)
	UpdateAlert(ctx context.Context, id uint64, req *models.UpsertAlertRequest) (*models.Alert, error)
	DeleteAlert(ctx context.Context, id uint64) error
	GetAlert(ctx context.Context, id uint64) (*models.Alert, error)
	ListAlerts(ctx context.Context, activeOnly bool) ([]models.Alert, error)
	SetAlertActive(ctx context.Context, id uint64, active bool) error

	ListInstances(ctx context.Context, status *models.InstanceStatus, limit int) ([]models.AlertInstance, error)
	AcknowledgeInstance(ctx context.Context, id uint64, actor, note string) error
	ResolveInstance(ctx context.Context, id uint64, actor, note string) error

	// EvaluateAll runs one evaluation pass over active rules.
	// Returns the number of instances fired.
	EvaluateAll(ctx context.Context) (int, error)
}

// DashboardService - cached aggregate snapshots
type DashboardService interface {
	GetSummary(ctx context.Context) (*models.DashboardSummary, error)
	GetHourlyTrend(ctx context.Context) ([]models.HourlyTrendPoint, error)
	GetTopExceptions(ctx context.Context) ([]models.TopException, error)
	GetServerStatusList(ctx context.Context) ([]models.ServerStatusItem, error)
	// Refresh recomputes and recaches all views.
	Refresh(ctx context.Context) error
}

// RetentionService - age-based deletion and nightly maintenance
type RetentionService interface {
	Run(ctx context.Context, req *models.RetentionRequest) (*models.RetentionResult, error)
}

// Identity is the resolved caller of a request.
type Identity struct {
	UserID     string
	Username   string
	Role       models.Role
	APIKeyID   string
	Scopes     []string // set for API-key identities; restricts the role's capabilities
	ServerName string   // set when authenticated via a server-scoped API key
}

// HasCapability reports whether the identity grants the named capability.
// API-key identities carry RoleService narrowed to their explicit scopes.
func (i *Identity) HasCapability(cap string) bool {
	if i == nil || !i.Role.HasCapability(cap) {
		return false
	}
	if len(i.Scopes) == 0 {
		return true
	}
	for _, s := range i.Scopes {
		if s == cap {
			return true
		}
	}
	return false
}

// AuthService - login, tokens, API keys
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest, clientIP string) (*models.LoginResponse, error)
	Refresh(ctx context.Context, req *models.RefreshRequest) (*models.LoginResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(ctx context.Context, token string) (*Identity, error)
	ValidateAPIKey(ctx context.Context, key string) (*Identity, error)
	CreateAPIKey(ctx context.Context, req *models.CreateAPIKeyRequest, actor string) (*models.CreateAPIKeyResponse, error)
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}
