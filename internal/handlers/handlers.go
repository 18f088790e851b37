package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/config"
	"portfolio/internal/httpx"
	"portfolio/internal/metrics"
	"portfolio/internal/middleware"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/service"
)

type AuthAPI interface {
	Register(ctx context.Context, input service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, email, password string) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (service.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, user models.User) error
	Profile(ctx context.Context, userID string) (models.User, error)
}

type UserAPI interface {
	List(ctx context.Context, actor models.User, filter repository.UserFilter) ([]models.User, query.Pagination, error)
	Get(ctx context.Context, actor models.User, id string) (models.User, error)
	Update(ctx context.Context, actor models.User, id string, payload map[string]any) (models.User, error)
	Delete(ctx context.Context, actor models.User, id string, permanent bool) error
	ChangePassword(ctx context.Context, actor models.User, id string, input service.ChangePasswordInput) error
}

type MessageAPI interface {
	List(ctx context.Context, viewer *models.User, q service.MessageQuery) ([]models.Message, query.Pagination, error)
	Get(ctx context.Context, viewer *models.User, key string) (models.Message, error)
	Create(ctx context.Context, actor models.User, payload map[string]any) (models.Message, error)
	Update(ctx context.Context, actor models.User, id string, payload map[string]any) (models.Message, error)
	Delete(ctx context.Context, actor models.User, id string) error
}

type AvatarAPI interface {
	Upload(ctx context.Context, actor models.User, id string, input service.AvatarInput) (models.User, error)
}

type AuditAPI interface {
	Query(ctx context.Context, filter repository.AuditFilter) ([]models.AuditEntry, query.Pagination, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type Deps struct {
	Tokens     middleware.AccessParser
	Principals middleware.PrincipalLoader
	Auth       AuthAPI
	Users      UserAPI
	Messages   MessageAPI
	Avatars    AvatarAPI
	Audit      AuditAPI
	DB         Pinger
	Cache      Pinger
}

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	deps    Deps
	started time.Time
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Deps) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
	}
}

func (h HandlerSet) Register(engine *gin.Engine) {
	engine.GET("/health", h.Health)
	engine.GET("/metrics", metrics.Handler())

	authn := middleware.Authenticate(h.deps.Tokens, h.deps.Principals, h.log)
	optional := middleware.OptionalAuth(h.deps.Tokens, h.deps.Principals, h.log)

	api := engine.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/logout-all", authn, h.LogoutAll)
		auth.GET("/profile", authn, h.Profile)
	}

	// Deleting is authenticated only: the service answers a self-delete with 400
	// before it checks for an admin caller.
	users := api.Group("/users", authn)
	users.GET("", middleware.RequireRoles(middleware.Staff...), h.ListUsers)
	users.GET("/:id", h.GetUser)
	users.PUT("/:id", h.UpdateUser)
	users.DELETE("/:id", h.DeleteUser)
	users.PUT("/:id/password", h.ChangePassword)
	users.PUT("/:id/avatar", h.UploadAvatar)

	messages := api.Group("/messages")
	messages.GET("", optional, h.ListMessages)
	messages.GET("/:id", optional, h.GetMessage)
	messages.POST("", authn, h.CreateMessage)
	messages.PUT("/:id", authn, h.UpdateMessage)
	messages.DELETE("/:id", authn, h.DeleteMessage)

	api.GET("/audit-logs", authn, middleware.RequireRoles(middleware.AdminOnly...), h.ListAuditLogs)
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	httpx.Fail(c, h.log, err)
}

// actor returns the authenticated principal; routes behind Authenticate always have one.
func (h HandlerSet) actor(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Abort(c, apperr.Unauthenticated("missing_token", "authentication required"))
	}
	return user, ok
}

func viewer(c *gin.Context) *models.User {
	if user, ok := middleware.CurrentUser(c); ok {
		return &user
	}
	return nil
}

// bindPayload reads a JSON object for whitelisted updates.
func bindPayload(c *gin.Context) (map[string]any, error) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, httpx.BindError(err)
	}
	if payload == nil {
		return nil, apperr.Validation("request body must be a json object")
	}
	return payload, nil
}
