package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/audit"
	"portfolio/internal/ids"
	"portfolio/internal/metrics"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/security"
)

var (
	errInvalidCredentials = apperr.Unauthenticated("invalid_credentials", "invalid email or password")
	errUserInactive       = apperr.Unauthenticated("user_inactive", "account is not active")
	errInvalidRefresh     = apperr.Unauthenticated("invalid_refresh_token", "invalid refresh token")
)

type AuthService struct {
	users    UserStore
	tokens   TokenStore
	issuer   *security.TokenIssuer
	throttle LoginThrottle
	audit    AuditRecorder
	log      zerolog.Logger

	hashPassword func(string) ([]byte, error)
	now          func() time.Time
}

func NewAuthService(
	users UserStore,
	tokens TokenStore,
	issuer *security.TokenIssuer,
	throttle LoginThrottle,
	recorder AuditRecorder,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:        users,
		tokens:       tokens,
		issuer:       issuer,
		throttle:     throttle,
		audit:        recorder,
		log:          log,
		hashPassword: security.HashPassword,
		now:          time.Now,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Username  string
}

type AuthResult struct {
	User             models.User
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RefreshResult struct {
	User            models.User
	AccessToken     string
	AccessExpiresAt time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPassword reports strength failures as a field error on "password".
func checkPassword(field, password string) error {
	strength := security.ValidateStrength(password)
	if strength.Valid {
		return nil
	}
	return apperr.Validation("password does not meet requirements", apperr.FieldError{
		Field:   field,
		Message: strings.Join(strength.Reasons, "; "),
	})
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	username, err := query.Username(input.Username, models.UserRoleUser)
	if err != nil {
		return AuthResult{}, apperr.Validation("invalid fields", apperr.FieldError{Field: "username", Message: err.Error()})
	}
	input.Username = username.(string)

	if err := checkPassword("password", input.Password); err != nil {
		return AuthResult{}, err
	}

	emailTaken, usernameTaken, err := s.users.Taken(ctx, input.Email, input.Username, "")
	if err != nil {
		return AuthResult{}, fmt.Errorf("check availability: %w", err)
	}
	if emailTaken {
		return AuthResult{}, apperr.Duplicate("email already registered")
	}
	if usernameTaken {
		return AuthResult{}, apperr.Duplicate("username already taken")
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: hash,
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	})
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return AuthResult{}, apperr.Duplicate("email already registered")
	case errors.Is(err, repository.ErrUsernameTaken):
		return AuthResult{}, apperr.Duplicate("username already taken")
	case err != nil:
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      user.ID,
		Action:       models.AuditActionCreate,
		ResourceType: models.ResourceUser,
		ResourceID:   user.ID,
		New:          user.Snapshot(),
	})
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)

	blocked, err := s.throttle.Blocked(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Msg("login throttle unavailable")
	}
	if blocked {
		metrics.LoginAttempts.WithLabelValues("throttled").Inc()
		return AuthResult{}, apperr.TooManyRequests("too many failed login attempts, try again later")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.loginFailed(ctx, email, "")
		return AuthResult{}, errInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
	}
	if !ok {
		s.loginFailed(ctx, email, user.ID)
		return AuthResult{}, errInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		metrics.LoginAttempts.WithLabelValues("inactive").Inc()
		return AuthResult{}, errUserInactive
	}

	if err := s.throttle.Reset(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("login throttle reset failed")
	}

	user, err = s.users.RecordLogin(ctx, user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("record login: %w", err)
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.audit.Record(ctx, audit.Entry{
		ActorID:      user.ID,
		Action:       models.AuditActionLogin,
		ResourceType: models.ResourceSession,
		ResourceID:   user.ID,
		New:          map[string]any{"success": true},
	})
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, userID string) {
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	if err := s.throttle.Fail(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("login throttle update failed")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:      userID,
		Action:       models.AuditActionLogin,
		ResourceType: models.ResourceSession,
		ResourceID:   userID,
		New:          map[string]any{"success": false, "email": email},
	})
}

// issue mints a token pair and persists the refresh token's hash.
func (s *AuthService) issue(ctx context.Context, user models.User) (AuthResult, error) {
	pair, err := s.issuer.IssuePair(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.persistRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func (s *AuthService) persistRefreshToken(ctx context.Context, userID, token string) error {
	meta := audit.MetaFrom(ctx)
	err := s.tokens.Create(ctx, models.RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: security.HashToken(token),
		ExpiresAt: s.now().Add(s.issuer.RefreshTTL()),
		CreatedIP: meta.IP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Refresh mints a new access token. The refresh token must verify, be on record,
// unrevoked and unexpired, and belong to an active user; it is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if errors.Is(err, security.ErrTokenExpired) {
		return RefreshResult{}, apperr.TokenExpired("refresh token expired")
	}
	if err != nil {
		return RefreshResult{}, errInvalidRefresh
	}

	record, err := s.tokens.FindByHash(ctx, security.HashToken(refreshToken))
	if errors.Is(err, repository.ErrTokenNotFound) {
		return RefreshResult{}, errInvalidRefresh
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("find refresh token: %w", err)
	}
	if record.UserID != claims.UserID || !record.Usable(s.now()) {
		return RefreshResult{}, errInvalidRefresh
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return RefreshResult{}, errUserInactive
	}
	if err != nil {
		return RefreshResult{}, fmt.Errorf("load user: %w", err)
	}
	if user.Status != models.UserStatusActive {
		return RefreshResult{}, errUserInactive
	}

	access, expiresAt, err := s.issuer.IssueAccess(user.ID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return RefreshResult{User: user, AccessToken: access, AccessExpiresAt: expiresAt}, nil
}

// Logout revokes one refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	record, err := s.tokens.Revoke(ctx, security.HashToken(refreshToken))
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      record.UserID,
		Action:       models.AuditActionLogout,
		ResourceType: models.ResourceSession,
		ResourceID:   record.ID,
	})
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, user models.User) error {
	n, err := s.tokens.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      user.ID,
		Action:       models.AuditActionLogout,
		ResourceType: models.ResourceSession,
		ResourceID:   user.ID,
		New:          map[string]any{"all": true, "revoked": n},
	})
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && user.Status == models.UserStatusDeleted) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
