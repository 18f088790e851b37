package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/httpx"
	"portfolio/internal/models"
	"portfolio/internal/repository"
	"portfolio/internal/security"
)

const currentUserKey = "current_user"

type AccessParser interface {
	ParseAccess(token string) (*security.Claims, error)
}

type PrincipalLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type principalKey struct{}

// CurrentUser returns the principal attached by Authenticate or OptionalAuth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// PrincipalFrom reads the principal from a request context.
func PrincipalFrom(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(principalKey{}).(models.User)
	return user, ok
}

func bearer(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

// resolve walks the token state machine: missing, invalid, expired, inactive, ok.
func resolve(c *gin.Context, parser AccessParser, users PrincipalLoader) (models.User, error) {
	token := bearer(c)
	if token == "" {
		return models.User{}, apperr.Unauthenticated("missing_token", "authentication required")
	}

	claims, err := parser.ParseAccess(token)
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return models.User{}, apperr.TokenExpired("access token expired")
	case err != nil:
		return models.User{}, apperr.InvalidToken("invalid access token")
	}

	user, err := users.GetByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && user.Status != models.UserStatusActive) {
		return models.User{}, apperr.Unauthenticated("user_inactive", "account is not active")
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func attach(c *gin.Context, user models.User) {
	c.Set(currentUserKey, user)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), principalKey{}, user))
}

func Authenticate(parser AccessParser, users PrincipalLoader, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolve(c, parser, users)
		if err != nil {
			httpx.Fail(c, log, err)
			return
		}
		attach(c, user)
		c.Next()
	}
}

// OptionalAuth attaches a principal when the request carries a usable token and
// otherwise continues anonymously.
func OptionalAuth(parser AccessParser, users PrincipalLoader, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolve(c, parser, users)
		if err == nil {
			attach(c, user)
		} else if _, ok := apperr.As(err); !ok {
			log.Warn().Err(err).Msg("optional auth lookup failed")
		}
		c.Next()
	}
}
