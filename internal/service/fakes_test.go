package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"portfolio/internal/audit"
	"portfolio/internal/config"
	"portfolio/internal/ids"
	"portfolio/internal/jobs"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/security"
)

var fastArgon = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func fastHash(password string) ([]byte, error) {
	return security.HashPasswordWithParams(password, fastArgon)
}

// memUsers mimics the users table including the partial unique indexes.
type memUsers struct {
	mu          sync.Mutex
	users       map[string]models.User
	failDeletes bool
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]models.User{}}
}

func (m *memUsers) taken(email, username, excludeID string) (bool, bool) {
	var e, u bool
	for _, user := range m.users {
		if user.ID == excludeID || user.Status == models.UserStatusDeleted {
			continue
		}
		e = e || (email != "" && strings.EqualFold(user.Email, email))
		u = u || (username != "" && strings.EqualFold(user.Username, username))
	}
	return e, u
}

func (m *memUsers) Create(_ context.Context, user models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, u := m.taken(user.Email, user.Username, "")
	if e {
		return models.User{}, repository.ErrEmailTaken
	}
	if u {
		return models.User{}, repository.ErrUsernameTaken
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Status != models.UserStatusDeleted && strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) Taken(_ context.Context, email, username, excludeID string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, u := m.taken(email, username, excludeID)
	return e, u, nil
}

func (m *memUsers) List(_ context.Context, f repository.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, user := range m.users {
		if user.Status != models.UserStatusDeleted && (f.Role == "" || user.Role == f.Role) {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memUsers) Update(_ context.Context, id string, set query.Assignments) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	for _, a := range set {
		switch a.Column {
		case query.ColFirstName:
			user.FirstName = a.Value.(string)
		case query.ColLastName:
			user.LastName = a.Value.(string)
		case query.ColUsername:
			user.Username = a.Value.(string)
		case query.ColBio:
			user.Bio = a.Value.(*string)
		case query.ColAvatarURL:
			user.AvatarURL = a.Value.(*string)
		case query.ColRole:
			user.Role = a.Value.(models.UserRole)
		case query.ColStatus:
			user.Status = a.Value.(models.UserStatus)
		case query.ColEmailVerified:
			user.EmailVerified = a.Value.(bool)
		}
	}
	if user.Status != models.UserStatusDeleted {
		e, u := m.taken(user.Email, user.Username, id)
		if e {
			return models.User{}, repository.ErrEmailTaken
		}
		if u {
			return models.User{}, repository.ErrUsernameTaken
		}
	}
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return user, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = hash
	m.users[id] = user
	return nil
}

func (m *memUsers) UpdateAvatar(_ context.Context, id string, url *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.AvatarURL = url
	m.users[id] = user
	return nil
}

func (m *memUsers) RecordLogin(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	now := time.Now()
	user.LoginCount++
	user.LastLoginAt = &now
	m.users[id] = user
	return user, nil
}

func (m *memUsers) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeletes {
		return errors.New("connection reset")
	}
	user, ok := m.users[id]
	if !ok || user.Status == models.UserStatusDeleted {
		return repository.ErrUserNotFound
	}
	now := time.Now()
	user.Status = models.UserStatusDeleted
	user.DeletedAt = &now
	m.users[id] = user
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

// seed stores a user with the given role and password and returns it.
func (m *memUsers) seed(t *testing.T, username string, role models.UserRole, password string) models.User {
	t.Helper()
	hash, err := fastHash(password)
	require.NoError(t, err)
	user := models.User{
		ID:           ids.New(),
		Email:        username + "@example.com",
		PasswordHash: hash,
		Username:     username,
		FirstName:    strings.ToUpper(username[:1]) + username[1:],
		LastName:     "Tester",
		Role:         role,
		Status:       models.UserStatusActive,
	}
	m.mu.Lock()
	m.users[user.ID] = user
	m.mu.Unlock()
	return user
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]models.RefreshToken{}}
}

func (m *memTokens) Create(_ context.Context, token models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[string(token.TokenHash)] = token
	return nil
}

func (m *memTokens) FindByHash(_ context.Context, hash []byte) (models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[string(hash)]
	if !ok {
		return models.RefreshToken{}, repository.ErrTokenNotFound
	}
	return token, nil
}

func (m *memTokens) Revoke(_ context.Context, hash []byte) (models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[string(hash)]
	if !ok {
		return models.RefreshToken{}, repository.ErrTokenNotFound
	}
	if !token.Revoked {
		now := time.Now()
		token.Revoked = true
		token.RevokedAt = &now
	}
	m.tokens[string(hash)] = token
	return token, nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			m.tokens[k] = token
			n++
		}
	}
	return n, nil
}

// expireAll backdates every stored record for userID while leaving the JWTs intact.
func (m *memTokens) expireAll(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, token := range m.tokens {
		if token.UserID == userID {
			token.ExpiresAt = time.Now().Add(-time.Minute)
			m.tokens[k] = token
		}
	}
}

func (m *memTokens) activeFor(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			n++
		}
	}
	return n
}

// memMessages enforces the unique slug constraint. stealSlugs makes the next n
// inserts lose a race: a competing row takes the slug first.
type memMessages struct {
	mu         sync.Mutex
	messages   map[string]models.Message
	stealSlugs int
	creates    int
}

func newMemMessages() *memMessages {
	return &memMessages{messages: map[string]models.Message{}}
}

func (m *memMessages) slugUsed(slug, excludeID string) bool {
	for _, msg := range m.messages {
		if msg.Slug == slug && msg.ID != excludeID {
			return true
		}
	}
	return false
}

func (m *memMessages) Create(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.stealSlugs > 0 {
		m.stealSlugs--
		thief := models.Message{ID: ids.New(), Slug: msg.Slug, Status: models.MessageStatusDraft, AuthorID: "someone"}
		m.messages[thief.ID] = thief
		return models.Message{}, repository.ErrSlugTaken
	}
	if m.slugUsed(msg.Slug, "") {
		return models.Message{}, repository.ErrSlugTaken
	}
	if msg.Tags == nil {
		msg.Tags = []string{}
	}
	msg.CreatedAt = time.Now()
	msg.UpdatedAt = msg.CreatedAt
	m.messages[msg.ID] = msg
	return msg, nil
}

func (m *memMessages) GetByID(_ context.Context, id string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return models.Message{}, repository.ErrMessageNotFound
	}
	return msg, nil
}

func (m *memMessages) GetBySlug(_ context.Context, slug string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.Slug == slug {
			return msg, nil
		}
	}
	return models.Message{}, repository.ErrMessageNotFound
}

func (m *memMessages) SlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugUsed(slug, excludeID), nil
}

func (m *memMessages) List(_ context.Context, f repository.MessageFilter) ([]models.Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if f.Status != "" && msg.Status != f.Status {
			continue
		}
		if f.Status == "" && msg.Status == models.MessageStatusDeleted {
			continue
		}
		if f.AuthorID != "" && msg.AuthorID != f.AuthorID {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memMessages) Update(_ context.Context, id string, set query.Assignments, tags []string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return models.Message{}, repository.ErrMessageNotFound
	}
	if v, ok := set.Lookup(query.ColSlug); ok && m.slugUsed(v.(string), id) {
		return models.Message{}, repository.ErrSlugTaken
	}
	applyAssignments(&msg, set)
	if v, ok := set.Lookup(query.ColSlug); ok {
		msg.Slug = v.(string)
	}
	if v, ok := set.Lookup(query.ColPublishedAt); ok {
		at := v.(time.Time)
		msg.PublishedAt = &at
	}
	if tags != nil {
		msg.Tags = tags
	}
	msg.UpdatedAt = time.Now()
	m.messages[id] = msg
	return msg, nil
}

func (m *memMessages) IncrementViews(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return 0, repository.ErrMessageNotFound
	}
	msg.ViewCount++
	m.messages[id] = msg
	return msg.ViewCount, nil
}

func (m *memMessages) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Status == models.MessageStatusDeleted {
		return repository.ErrMessageNotFound
	}
	msg.Status = models.MessageStatusDeleted
	m.messages[id] = msg
	return nil
}

type auditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *auditLog) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *auditLog) actions() []models.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func (a *auditLog) last() audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

type memThrottle struct {
	max   int
	fails map[string]int
	err   error
}

func newMemThrottle(limit int) *memThrottle {
	return &memThrottle{max: limit, fails: map[string]int{}}
}

func (t *memThrottle) Blocked(_ context.Context, email string) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	return t.fails[email] >= t.max, nil
}

func (t *memThrottle) Fail(_ context.Context, email string) error {
	if t.err != nil {
		return t.err
	}
	t.fails[email]++
	return nil
}

func (t *memThrottle) Reset(_ context.Context, email string) error {
	if t.err != nil {
		return t.err
	}
	delete(t.fails, email)
	return nil
}

type memObjects struct {
	objects map[string][]byte
}

func (o *memObjects) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	if o.objects == nil {
		o.objects = map[string][]byte{}
	}
	o.objects[bucket+"/"+key] = buf.Bytes()
	return nil
}

func (o *memObjects) PublicURL(bucket, key string) string {
	return "https://cdn.example.com/" + bucket + "/" + key
}

type memQueue struct {
	tasks []jobs.Task
}

func (q *memQueue) Enqueue(_ context.Context, t jobs.Task) error {
	q.tasks = append(q.tasks, t)
	return nil
}

func testIssuer(t *testing.T) *security.TokenIssuer {
	t.Helper()
	issuer, err := security.NewTokenIssuer(config.SecurityConfig{
		JWTAccessSecret:  "access-secret-for-tests",
		JWTRefreshSecret: "refresh-secret-for-tests",
		JWTAccessTTL:     15 * time.Minute,
		JWTRefreshTTL:    7 * 24 * time.Hour,
		Issuer:           "portfolio-api",
		Audience:         "portfolio-client",
	})
	require.NoError(t, err)
	return issuer
}

type testEnv struct {
	users    *memUsers
	tokens   *memTokens
	messages *memMessages
	audit    *auditLog
	throttle *memThrottle

	auth   *AuthService
	user   *UserService
	msg    *MessageService
	avatar *AvatarService
	queue  *memQueue
	store  *memObjects
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newMemUsers(),
		tokens:   newMemTokens(),
		messages: newMemMessages(),
		audit:    &auditLog{},
		throttle: newMemThrottle(5),
		queue:    &memQueue{},
		store:    &memObjects{},
	}
	log := zerolog.Nop()

	env.auth = NewAuthService(env.users, env.tokens, testIssuer(t), env.throttle, env.audit, log)
	env.auth.hashPassword = fastHash
	env.user = NewUserService(env.users, env.tokens, env.audit, log)
	env.user.hashPassword = fastHash
	env.msg = NewMessageService(env.messages, env.audit, log)
	env.avatar = NewAvatarService(env.users, env.store, env.queue, env.audit, config.StorageConfig{
		BucketAvatars: "avatars",
		PublicBaseURL: "https://cdn.example.com",
		MaxAvatarSize: 2 << 20,
	}, log)
	return env
}
