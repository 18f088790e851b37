package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/apperr"
	"portfolio/internal/audit"
	"portfolio/internal/models"
	"portfolio/internal/security"
)

func registerInput() RegisterInput {
	return RegisterInput{
		Email:     "  Ada@Example.com ",
		Password:  "Analytical1",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada",
	}
}

func TestRegisterStoresHashedCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := audit.WithMeta(context.Background(), audit.Meta{IP: "203.0.113.7", UserAgent: "test"})

	res, err := env.auth.Register(ctx, registerInput())
	require.NoError(t, err)

	stored, err := env.users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", stored.Email)
	assert.Equal(t, models.UserRoleUser, stored.Role)
	assert.Equal(t, models.UserStatusActive, stored.Status)
	assert.False(t, stored.EmailVerified)
	assert.NotEqual(t, "Analytical1", string(stored.PasswordHash))

	ok, err := security.VerifyPassword("Analytical1", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	record, err := env.tokens.FindByHash(ctx, security.HashToken(res.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, stored.ID, record.UserID)
	assert.Equal(t, "203.0.113.7", record.CreatedIP)

	assert.Equal(t, []models.AuditAction{models.AuditActionCreate}, env.audit.actions())
	assert.NotContains(t, env.audit.last().New, "passwordHash")
}

func TestRegisterDuplicateEmailOrUsernameCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, registerInput())
	require.NoError(t, err)

	dupEmail := registerInput()
	dupEmail.Username = "someone_else"
	_, err = env.auth.Register(ctx, dupEmail)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Status())

	dupUsername := registerInput()
	dupUsername.Email = "other@example.com"
	dupUsername.Username = "ADA"
	_, err = env.auth.Register(ctx, dupUsername)
	assert.True(t, apperr.IsKind(err, apperr.KindDuplicate))

	assert.Len(t, env.users.users, 1)
	assert.Len(t, env.tokens.tokens, 1)
}

func TestRegisterRejectsWeakPasswordAndBadUsername(t *testing.T) {
	env := newTestEnv(t)

	weak := registerInput()
	weak.Password = "password"
	_, err := env.auth.Register(context.Background(), weak)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "password", appErr.Fields[0].Field)

	bad := registerInput()
	bad.Username = "a b"
	_, err = env.auth.Register(context.Background(), bad)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Empty(t, env.users.users)
}

func TestLoginSuccessRecordsLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")

	res, err := env.auth.Login(context.Background(), "GRACE@example.com", "Compiler1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, 1, res.User.LoginCount)
	assert.NotNil(t, res.User.LastLoginAt)
	assert.Equal(t, models.AuditActionLogin, env.audit.last().Action)
	assert.Equal(t, map[string]any{"success": true}, env.audit.last().New)
}

func TestLoginFailureIsGenericAndAudited(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")

	_, wrongPassword := env.auth.Login(context.Background(), "grace@example.com", "nope")
	_, unknownEmail := env.auth.Login(context.Background(), "nobody@example.com", "nope")

	for _, err := range []error{wrongPassword, unknownEmail} {
		appErr, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, 401, appErr.Status())
		assert.Equal(t, "invalid email or password", appErr.Message)
	}
	assert.Equal(t, []models.AuditAction{models.AuditActionLogin, models.AuditActionLogin}, env.audit.actions())
	assert.Equal(t, false, env.audit.last().New.(map[string]any)["success"])
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")
	user.Status = models.UserStatusSuspended
	env.users.users[user.ID] = user

	_, err := env.auth.Login(context.Background(), "grace@example.com", "Compiler1")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "user_inactive", appErr.Code)
	assert.Equal(t, 401, appErr.Status())
}

func TestLoginThrottleBlocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")

	for i := 0; i < 5; i++ {
		_, err := env.auth.Login(context.Background(), "grace@example.com", "wrong")
		require.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	}
	_, err := env.auth.Login(context.Background(), "grace@example.com", "Compiler1")
	assert.True(t, apperr.IsKind(err, apperr.KindTooManyRequests))
}

func TestLoginThrottleFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")
	env.throttle.err = errors.New("redis down")

	_, err := env.auth.Login(context.Background(), "grace@example.com", "Compiler1")
	assert.NoError(t, err)
}

func TestRefreshMintsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)

	res, err := env.auth.Refresh(context.Background(), reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	claims, err := testIssuer(t).ParseAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
}

func TestRefreshAfterLogoutIsRejected(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(context.Background(), reg.RefreshToken))
	require.NoError(t, env.auth.Logout(context.Background(), reg.RefreshToken))

	_, err = env.auth.Refresh(context.Background(), reg.RefreshToken)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.Status())
	assert.Equal(t, "invalid_refresh_token", appErr.Code)
}

func TestRefreshRejectsExpiredStoredRecord(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = testIssuer(t).ParseRefresh(reg.RefreshToken)
	require.NoError(t, err, "signature still valid")
	env.tokens.expireAll(reg.User.ID)

	_, err = env.auth.Refresh(context.Background(), reg.RefreshToken)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.Status())
	assert.Equal(t, "invalid_refresh_token", appErr.Code)
}

func TestRefreshRejectsAccessTokenAndUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = env.auth.Refresh(context.Background(), reg.AccessToken)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	pair, err := testIssuer(t).IssuePair(reg.User.ID)
	require.NoError(t, err)
	_, err = env.auth.Refresh(context.Background(), pair.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated), "validly signed but never persisted")
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)

	user := env.users.users[reg.User.ID]
	user.Status = models.UserStatusSuspended
	env.users.users[user.ID] = user

	_, err = env.auth.Refresh(context.Background(), reg.RefreshToken)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "user_inactive", appErr.Code)
}

func TestLogoutAllRevokesEveryToken(t *testing.T) {
	env := newTestEnv(t)
	reg, err := env.auth.Register(context.Background(), registerInput())
	require.NoError(t, err)
	_, err = env.auth.Login(context.Background(), "ada@example.com", "Analytical1")
	require.NoError(t, err)
	require.Equal(t, 2, env.tokens.activeFor(reg.User.ID))

	require.NoError(t, env.auth.LogoutAll(context.Background(), reg.User))
	assert.Zero(t, env.tokens.activeFor(reg.User.ID))
	assert.Equal(t, models.AuditActionLogout, env.audit.last().Action)
}

func TestProfileHidesDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.users.seed(t, "grace", models.UserRoleUser, "Compiler1")
	got, err := env.auth.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)

	require.NoError(t, env.users.SoftDelete(context.Background(), user.ID))
	_, err = env.auth.Profile(context.Background(), user.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
