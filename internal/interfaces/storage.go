package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// LogStorage - interface for log entry persistence
type LogStorage interface {
	// AllocateIDs reserves n consecutive sequential ids and returns the
	// first. Ids are handed out at accept time so ingestion can acknowledge
	// before the flush commits.
	AllocateIDs(n int) uint64

	// Bulk insert; all entries commit in one transaction. The per-execution
	// level counts of the batch are applied to executions in the same
	// transaction.
	InsertBatch(ctx context.Context, entries []*models.LogEntry) error

	GetLog(ctx context.Context, id uint64) (*models.LogEntry, error)
	GetByCorrelationID(ctx context.Context, correlationID string, limit int) ([]models.LogEntry, error)
	Search(ctx context.Context, filter *models.LogSearchFilter) (*models.LogSearchResult, error)

	// Aggregations
	CountByLevel(ctx context.Context, since time.Time) (map[models.LogLevel]int64, error)
	CountSince(ctx context.Context, since time.Time, minLevel models.LogLevel) (int64, error)
	HourlyTrend(ctx context.Context, since time.Time) ([]models.HourlyTrendPoint, error)
	TopExceptions(ctx context.Context, since time.Time, limit int) ([]models.TopException, error)

	// Retention support
	CountOlderThan(ctx context.Context, cutoff time.Time, minLevel, maxLevel models.LogLevel) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, minLevel, maxLevel models.LogLevel, batchSize int) (int64, error)
	Partitions(ctx context.Context) ([]string, error)

	CountAll(ctx context.Context) (int64, error)
}

// JobStorage - interface for job persistence
type JobStorage interface {
	Upsert(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, filter *models.JobListFilter) ([]models.Job, int64, error)
	SetActive(ctx context.Context, jobID string, active bool) error
	CountJobs(ctx context.Context, activeOnly bool) (int64, error)
}

// ExecutionStorage - interface for job execution persistence
type ExecutionStorage interface {
	// AllocateID reserves the next sequential execution id.
	AllocateID() uint64

	// Insert + parent job rollup in one transaction
	InsertWithJobUpdate(ctx context.Context, execution *models.JobExecution, job *models.Job) error
	// Terminal transition + parent job rollup in one transaction
	CompleteWithJobUpdate(ctx context.Context, execution *models.JobExecution, job *models.Job) error

	GetExecution(ctx context.Context, id uint64) (*models.JobExecution, error)
	ListExecutions(ctx context.Context, filter *models.ExecutionListFilter) ([]models.JobExecution, int64, error)
	RecentExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error)
	RunningExecutions(ctx context.Context) ([]models.JobExecution, error)
	HasActiveExecution(ctx context.Context, jobID string) (bool, error)
	ConsecutiveFailures(ctx context.Context, jobID string) (int, error)

	CountByStatus(ctx context.Context, status models.ExecutionStatus) (int64, error)
	CountCompletedSince(ctx context.Context, since time.Time) (succeeded, failed int64, err error)
}

// ServerStorage - interface for server persistence
type ServerStorage interface {
	Upsert(ctx context.Context, server *models.Server) error
	GetServer(ctx context.Context, serverName string) (*models.Server, error)
	ListServers(ctx context.Context, activeOnly bool) ([]models.Server, error)
	UpdateStatus(ctx context.Context, serverName string, status models.ServerStatus) error
	SetActive(ctx context.Context, serverName string, active bool) error
	CountByStatus(ctx context.Context) (map[models.ServerStatus]int64, error)
}

// AlertStorage - interface for alert rules and instances
type AlertStorage interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id uint64) (*models.Alert, error)
	ListAlerts(ctx context.Context, activeOnly bool) ([]models.Alert, error)
	DeleteAlert(ctx context.Context, id uint64) error

	// Instance insert + rule lastTriggeredAt/triggerCount update in one transaction
	FireAlert(ctx context.Context, alert *models.Alert, instance *models.AlertInstance) error

	GetInstance(ctx context.Context, id uint64) (*models.AlertInstance, error)
	UpdateInstance(ctx context.Context, instance *models.AlertInstance) error
	ListInstances(ctx context.Context, status *models.InstanceStatus, limit int) ([]models.AlertInstance, error)
	CountOpenInstances(ctx context.Context) (int64, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CacheStorage - store-backed dashboard cache
type CacheStorage interface {
	Get(ctx context.Context, key string) (*models.DashboardCacheEntry, error)
	Put(ctx context.Context, entry *models.DashboardCacheEntry) error
	Delete(ctx context.Context, key string) error
}

// AuthStorage - interface for users, API keys, refresh tokens, audit log
type AuthStorage interface {
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error

	StoreRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string, revokedAt time.Time) error
	DeleteExpiredTokens(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error)
	CountExpiredTokens(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error)

	AppendAudit(ctx context.Context, entry *models.AuditLog) error
	DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	LogStorage() LogStorage
	JobStorage() JobStorage
	ExecutionStorage() ExecutionStorage
	ServerStorage() ServerStorage
	AlertStorage() AlertStorage
	CacheStorage() CacheStorage
	AuthStorage() AuthStorage
	RunValueLogGC() error
	Close() error
}
