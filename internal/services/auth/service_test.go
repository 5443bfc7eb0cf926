package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager, *common.ManualClock) {
	t.Helper()

	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	// JWT validation compares exp against the wall clock, so the manual
	// clock starts at real time here.
	clock := common.NewManualClock(time.Now())
	cfg := &common.AuthConfig{
		TokenSecret:           "unit-test-secret",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLHours:  24,
		LockoutThreshold:      3,
		LockoutMinutes:        15,
	}
	return NewService(storage, arbor.NewLogger(), clock, cfg), storage, clock
}

func seedAdmin(t *testing.T, svc *Service) {
	t.Helper()
	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), "admin", "correct horse battery"))
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	svc, storage, _ := newTestService(t)
	ctx := context.Background()

	seedAdmin(t, svc)
	require.NoError(t, svc.EnsureBootstrapAdmin(ctx, "admin", "different password"))

	user, err := storage.AuthStorage().GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdministrator, user.Role)
	require.NotEqual(t, "correct horse battery", user.PasswordHash)

	// Original password still valid; the second call did not reseed.
	_, err = svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.NoError(t, err)
}

func TestLoginIssuesValidTokenPair(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "10.0.0.5")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "admin", resp.Username)
	require.Equal(t, models.RoleAdministrator, resp.Role)
	require.Equal(t, clock.Now().Add(15*time.Minute), resp.ExpiresAt)

	identity, err := svc.ValidateAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", identity.Username)
	require.True(t, identity.HasCapability(models.CapAdmin))
	require.True(t, identity.HasCapability(models.CapRead))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	_, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "wrong"}, "")
	appErr := common.AsAppError(err)
	require.Equal(t, common.CodeUnauthorized, appErr.Code)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "wrong"}, "")
	appErr = common.AsAppError(err)
	require.Equal(t, common.CodeUnauthorized, appErr.Code)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "wrong"}, "")
		require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)
	}

	// Third failure crosses the threshold and locks the account.
	_, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "wrong"}, "")
	require.Equal(t, common.CodeAccountLocked, common.AsAppError(err).Code)

	// Correct password is refused while locked.
	_, err = svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.Equal(t, common.CodeAccountLocked, common.AsAppError(err).Code)

	clock.Advance(16 * time.Minute)
	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	login, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, &models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// Rotation revokes the old token.
	_, err = svc.Refresh(ctx, &models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)

	_, err = svc.Refresh(ctx, &models.RefreshRequest{RefreshToken: refreshed.RefreshToken})
	require.NoError(t, err)
}

func TestRefreshExpires(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	login, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	_, err = svc.Refresh(ctx, &models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	seedAdmin(t, svc)

	login, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "correct horse battery"}, "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken))
	_, err = svc.Refresh(ctx, &models.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)

	// Unknown and empty tokens are ignored.
	require.NoError(t, svc.Logout(ctx, "never-issued"))
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, &models.CreateAPIKeyRequest{
		Name:       "batch-01 agent",
		Scopes:     []string{models.CapIngestLogs, models.CapHeartbeat},
		ServerName: "batch-01",
	}, "admin")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.Key, "vgk_"))

	identity, err := svc.ValidateAPIKey(ctx, created.Key)
	require.NoError(t, err)
	require.Equal(t, models.RoleService, identity.Role)
	require.Equal(t, "batch-01", identity.ServerName)
	require.True(t, identity.HasCapability(models.CapIngestLogs))
	require.True(t, identity.HasCapability(models.CapHeartbeat))
	// Scope narrowing: the role allows job registration, the key does not.
	require.False(t, identity.HasCapability(models.CapRegisterJobs))
	// Service keys never read.
	require.False(t, identity.HasCapability(models.CapRead))

	keys, err := svc.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotContains(t, keys[0].KeyHash, created.Key)

	require.NoError(t, svc.RevokeAPIKey(ctx, created.ID))
	_, err = svc.ValidateAPIKey(ctx, created.Key)
	require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)

	err = svc.RevokeAPIKey(ctx, "never-issued")
	require.Equal(t, common.CodeNotFound, common.AsAppError(err).Code)
}

func TestAPIKeyScopesMustBeGrantable(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateAPIKey(context.Background(), &models.CreateAPIKeyRequest{
		Name:   "overreaching",
		Scopes: []string{models.CapRead},
	}, "admin")
	require.Equal(t, common.CodeValidation, common.AsAppError(err).Code)
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ValidateAccessToken(context.Background(), "not-a-jwt")
	require.Equal(t, common.CodeUnauthorized, common.AsAppError(err).Code)
}
