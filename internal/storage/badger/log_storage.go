package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// LogStorage implements the LogStorage interface for Badger
type LogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	seq    sequence
}

// NewLogStorage creates a new LogStorage instance. The id sequence is seeded
// from the current store max so ids stay unique across restarts.
func NewLogStorage(db *BadgerDB, logger arbor.ILogger) (interfaces.LogStorage, error) {
	s := &LogStorage{
		db:     db,
		logger: logger,
	}

	var max uint64
	err := db.Store().ForEach(&badgerhold.Query{}, func(entry *models.LogEntry) error {
		if entry.ID > max {
			max = entry.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed log id sequence: %w", err)
	}
	s.seq.seed(max)

	return s, nil
}

// AllocateIDs reserves n consecutive sequential ids and returns the first.
func (s *LogStorage) AllocateIDs(n int) uint64 {
	return s.seq.nextBlock(n)
}

// InsertBatch commits a flush batch in a single transaction. Entries without
// an id are assigned one; the per-execution level counts of the batch are
// applied to their executions in the same transaction, so an execution's
// counters always reflect whole flush cycles.
func (s *LogStorage) InsertBatch(ctx context.Context, entries []*models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	first := s.seq.nextBlock(len(entries))
	for i, entry := range entries {
		if entry.ID == 0 {
			entry.ID = first + uint64(i)
		}
		if entry.Partition == "" {
			entry.Partition = models.PartitionOf(entry.Timestamp)
		}
	}

	// Per-execution level deltas for this batch
	counts := make(map[uint64]map[models.LogLevel]int64)
	for _, entry := range entries {
		if entry.JobExecutionID == 0 {
			continue
		}
		byLevel := counts[entry.JobExecutionID]
		if byLevel == nil {
			byLevel = make(map[models.LogLevel]int64)
			counts[entry.JobExecutionID] = byLevel
		}
		byLevel[entry.Level]++
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for _, entry := range entries {
			if err := s.db.Store().TxInsert(txn, entry.ID, entry); err != nil {
				return fmt.Errorf("failed to insert log %d: %w", entry.ID, err)
			}
		}
		for executionID, byLevel := range counts {
			var execution models.JobExecution
			if err := s.db.Store().TxGet(txn, executionID, &execution); err != nil {
				if err == badgerhold.ErrNotFound {
					// Unknown execution id on the entry; counts are skipped,
					// the log row itself is kept.
					continue
				}
				return fmt.Errorf("failed to load execution %d: %w", executionID, err)
			}
			execution.AddLogCounts(byLevel)
			if err := s.db.Store().TxUpdate(txn, executionID, &execution); err != nil {
				return fmt.Errorf("failed to update execution %d counters: %w", executionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit log batch: %w", err)
	}
	return nil
}

func (s *LogStorage) GetLog(ctx context.Context, id uint64) (*models.LogEntry, error) {
	var entry models.LogEntry
	if err := s.db.Store().Get(id, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get log %d: %w", id, err)
	}
	return &entry, nil
}

func (s *LogStorage) GetByCorrelationID(ctx context.Context, correlationID string, limit int) ([]models.LogEntry, error) {
	var logs []models.LogEntry
	query := badgerhold.Where("CorrelationID").Eq(correlationID).Index("CorrelationID")
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get correlated logs: %w", err)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID < logs[j].ID })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Search runs the single paginated query over stored entries. Exact filters
// ride the badgerhold query; substring filters are applied in memory, the
// same way the store handles free-text elsewhere.
func (s *LogStorage) Search(ctx context.Context, filter *models.LogSearchFilter) (*models.LogSearchResult, error) {
	query := badgerhold.Where("Timestamp").Ge(*filter.Start).And("Timestamp").Le(*filter.End)

	if filter.JobID != "" {
		query = query.And("JobID").Eq(filter.JobID)
	}
	if filter.JobExecutionID != 0 {
		query = query.And("JobExecutionID").Eq(filter.JobExecutionID)
	}
	if filter.ServerName != "" {
		query = query.And("ServerName").Eq(filter.ServerName)
	}
	if filter.CorrelationID != "" {
		query = query.And("CorrelationID").Eq(filter.CorrelationID)
	}
	if filter.MinLevel != nil {
		query = query.And("Level").Ge(*filter.MinLevel)
	}
	if filter.MaxLevel != nil {
		query = query.And("Level").Le(*filter.MaxLevel)
	}

	var logs []models.LogEntry
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to search logs: %w", err)
	}

	filtered := logs[:0]
	for _, entry := range logs {
		if !matchesTextFilters(&entry, filter) {
			continue
		}
		filtered = append(filtered, entry)
	}

	sortEntries(filtered, filter.SortColumn, filter.SortDirection)

	total := int64(len(filtered))
	start := (filter.Page - 1) * filter.PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + filter.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	return &models.LogSearchResult{
		Items:      filtered[start:end],
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

func matchesTextFilters(entry *models.LogEntry, filter *models.LogSearchFilter) bool {
	if filter.SearchText != "" &&
		!strings.Contains(strings.ToLower(entry.Message), strings.ToLower(filter.SearchText)) {
		return false
	}
	if filter.ExceptionType != "" &&
		!strings.Contains(strings.ToLower(entry.ExceptionType), strings.ToLower(filter.ExceptionType)) {
		return false
	}
	if filter.HasException != nil && entry.HasException() != *filter.HasException {
		return false
	}
	if filter.Tag != "" {
		found := false
		for _, tag := range entry.Tags {
			if strings.Contains(strings.ToLower(tag), strings.ToLower(filter.Tag)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortEntries(logs []models.LogEntry, column, direction string) {
	desc := direction == models.SortDesc
	sort.SliceStable(logs, func(i, j int) bool {
		var less bool
		if column == models.SortByLevel {
			if logs[i].Level != logs[j].Level {
				less = logs[i].Level < logs[j].Level
			} else {
				less = logs[i].ID < logs[j].ID
			}
		} else {
			if !logs[i].Timestamp.Equal(logs[j].Timestamp) {
				less = logs[i].Timestamp.Before(logs[j].Timestamp)
			} else {
				less = logs[i].ID < logs[j].ID
			}
		}
		if desc {
			return !less
		}
		return less
	})
}

func (s *LogStorage) CountByLevel(ctx context.Context, since time.Time) (map[models.LogLevel]int64, error) {
	result := make(map[models.LogLevel]int64)
	query := badgerhold.Where("Timestamp").Ge(since)
	err := s.db.Store().ForEach(query, func(entry *models.LogEntry) error {
		result[entry.Level]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count logs by level: %w", err)
	}
	return result, nil
}

func (s *LogStorage) CountSince(ctx context.Context, since time.Time, minLevel models.LogLevel) (int64, error) {
	query := badgerhold.Where("Timestamp").Ge(since).And("Level").Ge(minLevel)
	count, err := s.db.Store().Count(&models.LogEntry{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int64(count), nil
}

func (s *LogStorage) HourlyTrend(ctx context.Context, since time.Time) ([]models.HourlyTrendPoint, error) {
	buckets := make(map[time.Time]*models.HourlyTrendPoint)
	query := badgerhold.Where("Timestamp").Ge(since)
	err := s.db.Store().ForEach(query, func(entry *models.LogEntry) error {
		hour := entry.Timestamp.UTC().Truncate(time.Hour)
		point := buckets[hour]
		if point == nil {
			point = &models.HourlyTrendPoint{Hour: hour}
			buckets[hour] = point
		}
		point.TotalCount++
		switch entry.Level {
		case models.LevelWarning:
			point.WarningCount++
		case models.LevelError:
			point.ErrorCount++
		case models.LevelCritical:
			point.CriticalCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute hourly trend: %w", err)
	}

	trend := make([]models.HourlyTrendPoint, 0, len(buckets))
	for _, point := range buckets {
		trend = append(trend, *point)
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Hour.Before(trend[j].Hour) })
	return trend, nil
}

func (s *LogStorage) TopExceptions(ctx context.Context, since time.Time, limit int) ([]models.TopException, error) {
	byType := make(map[string]*models.TopException)
	query := badgerhold.Where("Timestamp").Ge(since).And("ExceptionType").Ne("")
	err := s.db.Store().ForEach(query, func(entry *models.LogEntry) error {
		item := byType[entry.ExceptionType]
		if item == nil {
			item = &models.TopException{ExceptionType: entry.ExceptionType}
			byType[entry.ExceptionType] = item
		}
		item.Count++
		if entry.Timestamp.After(item.LastSeen) {
			item.LastSeen = entry.Timestamp
			item.SampleMessage = entry.Message
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute top exceptions: %w", err)
	}

	items := make([]models.TopException, 0, len(byType))
	for _, item := range byType {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Count > items[j].Count })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *LogStorage) CountOlderThan(ctx context.Context, cutoff time.Time, minLevel, maxLevel models.LogLevel) (int64, error) {
	query := badgerhold.Where("Timestamp").Lt(cutoff).And("Level").Ge(minLevel).And("Level").Le(maxLevel)
	count, err := s.db.Store().Count(&models.LogEntry{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired logs: %w", err)
	}
	return int64(count), nil
}

// DeleteOlderThan removes up to batchSize expired entries in one transaction.
// Oldest partitions drain first because candidates are collected in
// timestamp order.
func (s *LogStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time, minLevel, maxLevel models.LogLevel, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var victims []models.LogEntry
	query := badgerhold.Where("Timestamp").Lt(cutoff).
		And("Level").Ge(minLevel).And("Level").Le(maxLevel).
		SortBy("Timestamp").Limit(batchSize)
	if err := s.db.Store().Find(&victims, query); err != nil {
		return 0, fmt.Errorf("failed to collect expired logs: %w", err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		for i := range victims {
			if err := s.db.Store().TxDelete(txn, victims[i].ID, &models.LogEntry{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired logs: %w", err)
	}
	return int64(len(victims)), nil
}

// Partitions returns the distinct month partitions present, oldest first.
func (s *LogStorage) Partitions(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.Store().ForEach(&badgerhold.Query{}, func(entry *models.LogEntry) error {
		seen[entry.Partition] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	partitions := make([]string, 0, len(seen))
	for p := range seen {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	return partitions, nil
}

func (s *LogStorage) CountAll(ctx context.Context) (int64, error) {
	count, err := s.db.Store().Count(&models.LogEntry{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return int64(count), nil
}
