package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuthStorage implements the AuthStorage interface for Badger
type AuthStorage struct {
	db       *BadgerDB
	logger   arbor.ILogger
	auditSeq sequence
}

// NewAuthStorage creates a new AuthStorage instance
func NewAuthStorage(db *BadgerDB, logger arbor.ILogger) (interfaces.AuthStorage, error) {
	s := &AuthStorage{
		db:     db,
		logger: logger,
	}

	var max uint64
	err := db.Store().ForEach(&badgerhold.Query{}, func(entry *models.AuditLog) error {
		if entry.ID > max {
			max = entry.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed audit id sequence: %w", err)
	}
	s.auditSeq.seed(max)

	return s, nil
}

func (s *AuthStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	existing, err := s.GetUserByUsername(ctx, user.Username)
	if err == nil && existing != nil {
		return fmt.Errorf("username %s already exists", user.Username)
	}
	if err := s.db.Store().Insert(user.ID, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *AuthStorage) UpdateUser(ctx context.Context, user *models.User) error {
	if err := s.db.Store().Update(user.ID, user); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *AuthStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.Store().Get(id, &user); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *AuthStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var users []models.User
	query := badgerhold.Where("Username").Eq(username).Index("Username").Limit(1)
	if err := s.db.Store().Find(&users, query); err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if len(users) == 0 {
		return nil, badgerhold.ErrNotFound
	}
	return &users[0], nil
}

func (s *AuthStorage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == "" {
		return fmt.Errorf("api key id is required")
	}
	if err := s.db.Store().Insert(key.ID, key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *AuthStorage) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var keys []models.APIKey
	query := badgerhold.Where("KeyHash").Eq(keyHash).Index("KeyHash").Limit(1)
	if err := s.db.Store().Find(&keys, query); err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	if len(keys) == 0 {
		return nil, badgerhold.ErrNotFound
	}
	return &keys[0], nil
}

func (s *AuthStorage) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	var keys []models.APIKey
	if err := s.db.Store().Find(&keys, badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func (s *AuthStorage) RevokeAPIKey(ctx context.Context, id string) error {
	var key models.APIKey
	if err := s.db.Store().Get(id, &key); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to get api key: %w", err)
	}
	key.IsActive = false
	if err := s.db.Store().Update(id, &key); err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	return nil
}

func (s *AuthStorage) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	var key models.APIKey
	if err := s.db.Store().Get(id, &key); err != nil {
		return nil // best-effort bookkeeping
	}
	key.LastUsedAt = &usedAt
	return s.db.Store().Update(id, &key)
}

func (s *AuthStorage) StoreRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.TokenHash == "" {
		return fmt.Errorf("token hash is required")
	}
	if err := s.db.Store().Upsert(token.TokenHash, token); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *AuthStorage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := s.db.Store().Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, badgerhold.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &token, nil
}

func (s *AuthStorage) RevokeRefreshToken(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	var token models.RefreshToken
	if err := s.db.Store().Get(tokenHash, &token); err != nil {
		if err == badgerhold.ErrNotFound {
			return badgerhold.ErrNotFound
		}
		return fmt.Errorf("failed to get refresh token: %w", err)
	}
	token.RevokedAt = &revokedAt
	if err := s.db.Store().Update(tokenHash, &token); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// expiredTokenHashes collects tokens past expiry or revoked before the
// revokedBefore cutoff.
func (s *AuthStorage) expiredTokenHashes(now time.Time, revokedBefore time.Time) ([]string, error) {
	var tokens []models.RefreshToken
	if err := s.db.Store().Find(&tokens, badgerhold.Where("UserID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	var victims []string
	for i := range tokens {
		expired := now.After(tokens[i].ExpiresAt)
		staleRevoked := tokens[i].RevokedAt != nil && tokens[i].RevokedAt.Before(revokedBefore)
		if expired || staleRevoked {
			victims = append(victims, tokens[i].TokenHash)
		}
	}
	return victims, nil
}

// CountExpiredTokens reports how many tokens a purge would remove.
func (s *AuthStorage) CountExpiredTokens(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error) {
	victims, err := s.expiredTokenHashes(now, revokedBefore)
	if err != nil {
		return 0, err
	}
	return int64(len(victims)), nil
}

func (s *AuthStorage) DeleteExpiredTokens(ctx context.Context, now time.Time, revokedBefore time.Time) (int64, error) {
	victims, err := s.expiredTokenHashes(now, revokedBefore)
	if err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		for _, hash := range victims {
			if err := s.db.Store().TxDelete(txn, hash, &models.RefreshToken{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	return int64(len(victims)), nil
}

func (s *AuthStorage) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == 0 {
		entry.ID = s.auditSeq.next()
	}
	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// CountAuditBefore reports how many audit rows a purge would remove.
func (s *AuthStorage) CountAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.db.Store().Count(&models.AuditLog{}, badgerhold.Where("Timestamp").Lt(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return int64(count), nil
}

func (s *AuthStorage) DeleteAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := badgerhold.Where("Timestamp").Lt(cutoff)
	count, err := s.db.Store().Count(&models.AuditLog{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.db.Store().DeleteMatching(&models.AuditLog{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return int64(count), nil
}
