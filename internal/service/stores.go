package service

import (
	"context"
	"io"

	"portfolio/internal/audit"
	"portfolio/internal/jobs"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
)

// UserStore is satisfied by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Taken(ctx context.Context, email, username, excludeID string) (emailTaken, usernameTaken bool, err error)
	List(ctx context.Context, filter repository.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, id string, set query.Assignments) (models.User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdateAvatar(ctx context.Context, id string, avatarURL *string) error
	RecordLogin(ctx context.Context, id string) (models.User, error)
	SoftDelete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// TokenStore is satisfied by repository.RefreshTokenRepository.
type TokenStore interface {
	Create(ctx context.Context, token models.RefreshToken) error
	FindByHash(ctx context.Context, hash []byte) (models.RefreshToken, error)
	Revoke(ctx context.Context, hash []byte) (models.RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// MessageStore is satisfied by repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	GetByID(ctx context.Context, id string) (models.Message, error)
	GetBySlug(ctx context.Context, slug string) (models.Message, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	List(ctx context.Context, filter repository.MessageFilter) ([]models.Message, int, error)
	Update(ctx context.Context, id string, set query.Assignments, tags []string) (models.Message, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	SoftDelete(ctx context.Context, id string) error
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// LoginThrottle is satisfied by cache.LoginThrottle.
type LoginThrottle interface {
	Blocked(ctx context.Context, email string) (bool, error)
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// ObjectStore is satisfied by storage.ObjectStore.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	PublicURL(bucket, key string) string
}

type JobQueue interface {
	Enqueue(ctx context.Context, t jobs.Task) error
}
