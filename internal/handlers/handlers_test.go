package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/apperr"
	"portfolio/internal/config"
	"portfolio/internal/httpx"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/security"
	"portfolio/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubTokens treats the bearer token as the user id.
type stubTokens struct{}

func (stubTokens) ParseAccess(token string) (*security.Claims, error) {
	if token == "expired" {
		return nil, security.ErrTokenExpired
	}
	return &security.Claims{UserID: token}, nil
}

type stubPrincipals map[string]models.User

func (s stubPrincipals) GetByID(_ context.Context, id string) (models.User, error) {
	if user, ok := s[id]; ok {
		return user, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

type stubAuth struct {
	AuthAPI
	register func(service.RegisterInput) (service.AuthResult, error)
	login    func(email, password string) (service.AuthResult, error)
}

func (s stubAuth) Register(_ context.Context, in service.RegisterInput) (service.AuthResult, error) {
	return s.register(in)
}

func (s stubAuth) Login(_ context.Context, email, password string) (service.AuthResult, error) {
	return s.login(email, password)
}

type stubUsers struct {
	UserAPI
	deleted   []string
	permanent bool
	deleteErr error
	listed    repository.UserFilter
}

func (s *stubUsers) Delete(_ context.Context, _ models.User, id string, permanent bool) error {
	s.deleted = append(s.deleted, id)
	s.permanent = permanent
	return s.deleteErr
}

func (s *stubUsers) List(_ context.Context, _ models.User, f repository.UserFilter) ([]models.User, query.Pagination, error) {
	s.listed = f
	return []models.User{{ID: "u1", Role: models.UserRoleUser}}, f.Page.Paginate(1), nil
}

type stubMessages struct {
	MessageAPI
	viewer *models.User
	q      service.MessageQuery
}

func (s *stubMessages) List(_ context.Context, viewer *models.User, q service.MessageQuery) ([]models.Message, query.Pagination, error) {
	s.viewer = viewer
	s.q = q
	return nil, q.Page.Paginate(0), nil
}

type stubAvatars struct {
	declared string
	body     []byte
}

func (s *stubAvatars) Upload(_ context.Context, actor models.User, _ string, in service.AvatarInput) (models.User, error) {
	s.declared = in.Declared
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(in.File)
	s.body = buf.Bytes()
	url := "https://cdn.example.com/a.png"
	actor.AvatarURL = &url
	return actor, nil
}

type stubAudit struct {
	filter repository.AuditFilter
}

func (s *stubAudit) Query(_ context.Context, f repository.AuditFilter) ([]models.AuditEntry, query.Pagination, error) {
	s.filter = f
	return []models.AuditEntry{{ID: "a1", Action: models.AuditActionLogin}}, f.Page.Paginate(1), nil
}

type fixture struct {
	engine   *gin.Engine
	users    *stubUsers
	messages *stubMessages
	avatars  *stubAvatars
	audit    *stubAudit
	auth     *stubAuth
	db       *error
}

func newFixture(t *testing.T, environment string) *fixture {
	t.Helper()
	var dbErr error
	f := &fixture{
		users:    &stubUsers{},
		messages: &stubMessages{},
		avatars:  &stubAvatars{},
		audit:    &stubAudit{},
		auth:     &stubAuth{},
		db:       &dbErr,
	}
	cfg := &config.AppConfig{Environment: environment, Storage: config.StorageConfig{MaxAvatarSize: 1 << 10}}
	principals := stubPrincipals{
		"user":  {ID: "user", Role: models.UserRoleUser, Status: models.UserStatusActive},
		"mod":   {ID: "mod", Role: models.UserRoleModerator, Status: models.UserStatusActive},
		"admin": {ID: "admin", Role: models.UserRoleAdmin, Status: models.UserStatusActive},
	}
	h := NewHandlerSet(zerolog.Nop(), cfg, Deps{
		Tokens:     stubTokens{},
		Principals: principals,
		Auth:       f.auth,
		Users:      f.users,
		Messages:   f.messages,
		Avatars:    f.avatars,
		Audit:      f.audit,
		DB:         PingFunc(func(context.Context) error { return *f.db }),
		Cache:      PingFunc(func(context.Context) error { return nil }),
	})

	f.engine = gin.New()
	if environment == "development" {
		f.engine.Use(httpx.Verbose())
	}
	h.Register(f.engine)
	return f
}

func (f *fixture) do(method, path, token string, body any) (*httptest.ResponseRecorder, httpx.Envelope) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.serve(req)
}

func (f *fixture) serve(req *http.Request) (*httptest.ResponseRecorder, httpx.Envelope) {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var env httpx.Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRegisterBindingErrorsListFields(t *testing.T) {
	f := newFixture(t, "production")

	w, env := f.do(http.MethodPost, "/api/auth/register", "", map[string]any{"email": "nope", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	fields := map[string]string{}
	for _, fe := range env.Errors {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "is required", fields["firstName"])
	assert.Contains(t, fields, "username")

	w, env = f.do(http.MethodPost, "/api/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body is not valid json", env.Message)
}

func TestRegisterCreated(t *testing.T) {
	f := newFixture(t, "production")
	f.auth.register = func(in service.RegisterInput) (service.AuthResult, error) {
		assert.Equal(t, "Ada", in.FirstName)
		return service.AuthResult{User: models.User{ID: "u1", Email: in.Email}, AccessToken: "a", RefreshToken: "r"}, nil
	}

	w, env := f.do(http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "ada@example.com", "password": "Analytical1", "firstName": "Ada", "lastName": "L", "username": "ada",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, "a", data["accessToken"])
	assert.Equal(t, "r", data["refreshToken"])
	assert.NotContains(t, w.Body.String(), "passwordHash")
}

func TestErrorEnvelopeMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.TooManyRequests("slow down"), http.StatusTooManyRequests, "too_many_requests"},
		{apperr.Unauthenticated("invalid_credentials", "invalid email or password"), http.StatusUnauthorized, "invalid_credentials"},
		{apperr.Duplicate("email already registered"), http.StatusBadRequest, "duplicate"},
		{apperr.Conflict("retry", errors.New("slug")), http.StatusConflict, "conflict"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		f := newFixture(t, "production")
		f.auth.login = func(string, string) (service.AuthResult, error) { return service.AuthResult{}, tc.err }

		w, env := f.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "a@b.c", "password": "x"})
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, env.Code)
		assert.False(t, env.Success)
		assert.Empty(t, env.Error, "no internal detail outside development")
		assert.NotContains(t, w.Body.String(), "connection refused")
	}
}

func TestInternalDetailOnlyInDevelopment(t *testing.T) {
	f := newFixture(t, "development")
	f.auth.login = func(string, string) (service.AuthResult, error) {
		return service.AuthResult{}, errors.New("pq: connection refused")
	}

	w, env := f.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", env.Message)
	assert.Equal(t, "pq: connection refused", env.Error)
}

func TestDeleteUserRouteIsNotAdminGated(t *testing.T) {
	f := newFixture(t, "production")
	f.users.deleteErr = apperr.Validation("you cannot delete your own account")

	w, env := f.do(http.MethodDelete, "/api/users/user", "user", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "you cannot delete your own account", env.Message)
	assert.Equal(t, []string{"user"}, f.users.deleted)

	f.users.deleteErr = nil
	w, _ = f.do(http.MethodDelete, "/api/users/other?permanent=true", "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.users.permanent)

	w, _ = f.do(http.MethodDelete, "/api/users/other?permanent=maybe", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(http.MethodDelete, "/api/users/other", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", env.Code)
}

func TestListUsersRequiresStaffAndParsesQuery(t *testing.T) {
	f := newFixture(t, "production")

	w, _ := f.do(http.MethodGet, "/api/users", "user", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := f.do(http.MethodGet, "/api/users?limit=99999&sort=password_hash&role=moderator", "mod", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, query.MaxLimit, f.users.listed.Page.Limit)
	assert.Equal(t, query.ColCreatedAt, f.users.listed.Sort.Column)
	assert.Equal(t, models.UserRoleModerator, f.users.listed.Role)
	items := env.Data.(map[string]any)["items"].([]any)
	assert.Len(t, items, 1)

	w, env = f.do(http.MethodGet, "/api/users?role=root", "mod", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "role", env.Errors[0].Field)
}

func TestListMessagesIsPublic(t *testing.T) {
	f := newFixture(t, "production")

	w, _ := f.do(http.MethodGet, "/api/messages?featured=true&author=me", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.messages.viewer)
	require.NotNil(t, f.messages.q.Featured)
	assert.True(t, *f.messages.q.Featured)
	assert.Nil(t, f.messages.q.Pinned)
	assert.Equal(t, "me", f.messages.q.Author)

	w, _ = f.do(http.MethodGet, "/api/messages", "mod", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.messages.viewer)
	assert.Equal(t, "mod", f.messages.viewer.ID)

	w, _ = f.do(http.MethodGet, "/api/messages", "expired", nil)
	assert.Equal(t, http.StatusOK, w.Code, "optional auth ignores bad tokens")
	assert.Nil(t, f.messages.viewer)

	w, _ = f.do(http.MethodGet, "/api/messages?pinned=sometimes", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLogsAdminOnly(t *testing.T) {
	f := newFixture(t, "production")

	w, _ := f.do(http.MethodGet, "/api/audit-logs", "mod", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := f.do(http.MethodGet, "/api/audit-logs?action=LOGIN&from=2024-01-01&to=2024-01-31&resourceType=user", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, models.AuditActionLogin, f.audit.filter.Action)
	assert.Equal(t, "user", f.audit.filter.ResourceType)
	require.NotNil(t, f.audit.filter.To)
	assert.Equal(t, 23, f.audit.filter.To.Hour())

	w, env = f.do(http.MethodGet, "/api/audit-logs?action=hack&from=yesterday", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.Errors, 2)
}

func TestUploadAvatarPassesDeclaredType(t *testing.T) {
	f := newFixture(t, "production")

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="a.png"`)
	header.Set("Content-Type", "image/png; charset=binary")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/users/user/avatar", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer user")
	w, env := f.serve(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "image/png", f.avatars.declared)
	assert.Equal(t, []byte("png-bytes"), f.avatars.body)

	req = httptest.NewRequest(http.MethodPut, "/api/users/user/avatar", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user")
	w, env = f.serve(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "file", env.Errors[0].Field)
}

func TestHealthReportsDatabaseState(t *testing.T) {
	f := newFixture(t, "production")

	w, _ := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, "connected", body["cache"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "memory")

	*f.db = errors.New("dial tcp: refused")
	w, _ = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body["database"])
}
