package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefix = "vgk_"

// Service implements login, token issuance and API key management.
// Passwords are bcrypt-hashed; refresh tokens and API keys are stored as
// SHA-256 hashes only.
type Service struct {
	storage  interfaces.StorageManager
	logger   arbor.ILogger
	clock    common.Clock
	validate *validator.Validate

	secret           []byte
	accessTTL        time.Duration
	refreshTTL       time.Duration
	lockoutThreshold int
	lockoutWindow    time.Duration
}

// NewService creates the auth service. A missing token secret gets a random
// one, which invalidates outstanding tokens on restart.
func NewService(storage interfaces.StorageManager, logger arbor.ILogger, clock common.Clock, cfg *common.AuthConfig) *Service {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = randomBytes(32)
		logger.Warn().Msg("No token secret configured; using an ephemeral secret, tokens will not survive restart")
	}
	accessMinutes := cfg.AccessTokenTTLMinutes
	if accessMinutes <= 0 {
		accessMinutes = 15
	}
	refreshHours := cfg.RefreshTokenTTLHours
	if refreshHours <= 0 {
		refreshHours = 168
	}
	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}
	lockoutMinutes := cfg.LockoutMinutes
	if lockoutMinutes <= 0 {
		lockoutMinutes = 15
	}
	return &Service{
		storage:          storage,
		logger:           logger,
		clock:            clock,
		validate:         validator.New(),
		secret:           secret,
		accessTTL:        time.Duration(accessMinutes) * time.Minute,
		refreshTTL:       time.Duration(refreshHours) * time.Hour,
		lockoutThreshold: threshold,
		lockoutWindow:    time.Duration(lockoutMinutes) * time.Minute,
	}
}

// EnsureBootstrapAdmin seeds the administrator account on first start.
// No-op when the user already exists or no password is configured.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.storage.AuthStorage().GetUserByUsername(ctx, username); err == nil {
		return nil
	} else if err != badgerhold.ErrNotFound {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	user := &models.User{
		ID:            uuid.NewString(),
		Username:      username,
		PasswordHash:  string(hash),
		Role:          models.RoleAdministrator,
		SecurityStamp: uuid.NewString(),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.storage.AuthStorage().CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info().Str("username", username).Msg("Bootstrap administrator created")
	return nil
}

// Login verifies credentials and issues a token pair. Repeated failures lock
// the account for the configured window.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest, clientIP string) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid login request: %v", err)
	}

	now := s.clock.Now()
	user, err := s.storage.AuthStorage().GetUserByUsername(ctx, req.Username)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.UnauthorizedError("invalid credentials")
		}
		return nil, common.InternalError("failed to load user")
	}
	if !user.IsActive {
		return nil, common.UnauthorizedError("invalid credentials")
	}
	if user.LockedAt(now) {
		return nil, common.AccountLockedError("account locked until %s", user.LockedUntil.UTC().Format(time.RFC3339))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		user.FailedLogins++
		if user.FailedLogins >= s.lockoutThreshold {
			lockedUntil := now.Add(s.lockoutWindow)
			user.LockedUntil = &lockedUntil
			user.FailedLogins = 0
		}
		user.UpdatedAt = now
		if err := s.storage.AuthStorage().UpdateUser(ctx, user); err != nil {
			s.logger.Warn().Err(err).Str("username", user.Username).Msg("Failed to record login failure")
		}
		s.audit(ctx, user.Username, "login.failed", "", clientIP)
		if user.LockedUntil != nil {
			return nil, common.AccountLockedError("account locked until %s", user.LockedUntil.UTC().Format(time.RFC3339))
		}
		return nil, common.UnauthorizedError("invalid credentials")
	}

	user.FailedLogins = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.storage.AuthStorage().UpdateUser(ctx, user); err != nil {
		return nil, common.InternalError("failed to update user")
	}

	response, err := s.issueTokens(ctx, user, now)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user.Username, "login", "", clientIP)
	return response, nil
}

// Refresh rotates a valid refresh token into a new pair.
func (s *Service) Refresh(ctx context.Context, req *models.RefreshRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid refresh request: %v", err)
	}

	now := s.clock.Now()
	hash := hashToken(req.RefreshToken)
	token, err := s.storage.AuthStorage().GetRefreshToken(ctx, hash)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.UnauthorizedError("invalid refresh token")
		}
		return nil, common.InternalError("failed to load refresh token")
	}
	if !token.Valid(now) {
		return nil, common.UnauthorizedError("refresh token expired or revoked")
	}

	user, err := s.storage.AuthStorage().GetUser(ctx, token.UserID)
	if err != nil || !user.IsActive {
		return nil, common.UnauthorizedError("invalid refresh token")
	}
	if user.LockedAt(now) {
		return nil, common.AccountLockedError("account locked until %s", user.LockedUntil.UTC().Format(time.RFC3339))
	}

	if err := s.storage.AuthStorage().RevokeRefreshToken(ctx, hash, now); err != nil {
		return nil, common.InternalError("failed to rotate refresh token")
	}
	return s.issueTokens(ctx, user, now)
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.storage.AuthStorage().RevokeRefreshToken(ctx, hashToken(refreshToken), s.clock.Now())
	if err != nil && err != badgerhold.ErrNotFound {
		return common.InternalError("failed to revoke refresh token")
	}
	return nil
}

// ValidateAccessToken verifies the JWT and resolves the caller identity.
// Tokens whose security stamp no longer matches the user are rejected.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (*interfaces.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.UnauthorizedError("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, common.UnauthorizedError("invalid access token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, common.UnauthorizedError("invalid access token")
	}
	userID, _ := claims["userId"].(string)
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	stamp, _ := claims["securityStamp"].(string)
	if userID == "" {
		return nil, common.UnauthorizedError("invalid access token")
	}

	user, err := s.storage.AuthStorage().GetUser(ctx, userID)
	if err != nil || !user.IsActive {
		return nil, common.UnauthorizedError("invalid access token")
	}
	if user.SecurityStamp != stamp {
		return nil, common.UnauthorizedError("access token revoked")
	}

	return &interfaces.Identity{
		UserID:   userID,
		Username: username,
		Role:     models.Role(role),
	}, nil
}

// ValidateAPIKey resolves an agent credential into a service identity.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) (*interfaces.Identity, error) {
	if key == "" {
		return nil, common.UnauthorizedError("missing API key")
	}
	record, err := s.storage.AuthStorage().GetAPIKeyByHash(ctx, hashToken(key))
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.UnauthorizedError("invalid API key")
		}
		return nil, common.InternalError("failed to load API key")
	}
	if !record.IsActive {
		return nil, common.UnauthorizedError("API key revoked")
	}

	if err := s.storage.AuthStorage().TouchAPIKey(ctx, record.ID, s.clock.Now()); err != nil {
		s.logger.Debug().Err(err).Str("key_id", record.ID).Msg("Failed to touch API key")
	}

	return &interfaces.Identity{
		Username:   record.Name,
		Role:       models.RoleService,
		APIKeyID:   record.ID,
		Scopes:     record.Scopes,
		ServerName: record.ServerName,
	}, nil
}

// CreateAPIKey provisions a scoped key. The plaintext is returned exactly once.
func (s *Service) CreateAPIKey(ctx context.Context, req *models.CreateAPIKeyRequest, actor string) (*models.CreateAPIKeyResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, common.ValidationError("invalid API key request: %v", err)
	}
	for _, scope := range req.Scopes {
		if !models.RoleService.HasCapability(scope) {
			return nil, common.ValidationError("scope %q is not grantable to an API key", scope)
		}
	}

	plaintext := apiKeyPrefix + hex.EncodeToString(randomBytes(24))
	record := &models.APIKey{
		ID:         common.NewAPIKeyID(),
		Name:       req.Name,
		KeyHash:    hashToken(plaintext),
		Scopes:     req.Scopes,
		ServerName: req.ServerName,
		IsActive:   true,
		CreatedAt:  s.clock.Now(),
		CreatedBy:  actor,
	}
	if err := s.storage.AuthStorage().CreateAPIKey(ctx, record); err != nil {
		return nil, common.InternalError("failed to create API key")
	}
	s.audit(ctx, actor, "apikey.create", record.ID, "")

	return &models.CreateAPIKeyResponse{
		ID:     record.ID,
		Key:    plaintext,
		Name:   record.Name,
		Scopes: record.Scopes,
	}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	keys, err := s.storage.AuthStorage().ListAPIKeys(ctx)
	if err != nil {
		return nil, common.InternalError("failed to list API keys")
	}
	return keys, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	if err := s.storage.AuthStorage().RevokeAPIKey(ctx, id); err != nil {
		if err == badgerhold.ErrNotFound {
			return common.NotFoundError("API key %s not found", id)
		}
		return common.InternalError("failed to revoke API key %s", id)
	}
	return nil
}

func (s *Service) issueTokens(ctx context.Context, user *models.User, now time.Time) (*models.LoginResponse, error) {
	expiresAt := now.Add(s.accessTTL)
	claims := jwt.MapClaims{
		"userId":        user.ID,
		"username":      user.Username,
		"role":          string(user.Role),
		"securityStamp": user.SecurityStamp,
		"iat":           now.Unix(),
		"exp":           expiresAt.Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, common.InternalError("failed to sign access token")
	}

	refreshPlaintext := hex.EncodeToString(randomBytes(32))
	refresh := &models.RefreshToken{
		TokenHash: hashToken(refreshPlaintext),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.storage.AuthStorage().StoreRefreshToken(ctx, refresh); err != nil {
		return nil, common.InternalError("failed to store refresh token")
	}

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshPlaintext,
		ExpiresAt:    expiresAt,
		Username:     user.Username,
		Role:         user.Role,
	}, nil
}

func (s *Service) audit(ctx context.Context, actor, action, target, clientIP string) {
	entry := &models.AuditLog{
		Timestamp: s.clock.Now(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		ClientIP:  clientIP,
	}
	if err := s.storage.AuthStorage().AppendAudit(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to append audit entry")
	}
}

func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is unrecoverable for credential material
		panic(err)
	}
	return buf
}
