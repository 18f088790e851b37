package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/audit"
	"portfolio/internal/config"
	"portfolio/internal/ids"
	"portfolio/internal/jobs"
	"portfolio/internal/media/sniffer"
	"portfolio/internal/media/svg"
	"portfolio/internal/models"
	"portfolio/internal/repository"
	"portfolio/internal/storage"
)

type AvatarInput struct {
	File     io.Reader
	Size     int64
	Declared string
}

type AvatarService struct {
	users UserStore
	store ObjectStore
	queue JobQueue
	audit AuditRecorder
	cfg   config.StorageConfig
	log   zerolog.Logger
}

func NewAvatarService(users UserStore, store ObjectStore, queue JobQueue, recorder AuditRecorder, cfg config.StorageConfig, log zerolog.Logger) *AvatarService {
	return &AvatarService{
		users: users,
		store: store,
		queue: queue,
		audit: recorder,
		cfg:   cfg,
		log:   log,
	}
}

func fileError(msg string) error {
	return apperr.Validation("invalid avatar", apperr.FieldError{Field: "file", Message: msg})
}

// Upload stores a new avatar for the user and schedules the previous object, if it
// lives in our bucket, for deletion.
func (s *AvatarService) Upload(ctx context.Context, actor models.User, id string, input AvatarInput) (models.User, error) {
	if actor.ID != id && !actor.Role.IsAdmin() {
		return models.User{}, apperr.Forbidden("you can only change your own avatar")
	}
	target, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && target.Status == models.UserStatusDeleted) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	if protectsAdmin(actor, target) {
		return models.User{}, apperr.Forbidden("only a super admin can modify an administrator")
	}

	data, result, err := s.read(input)
	if err != nil {
		return models.User{}, err
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", id, ids.New(), result.Ext())
	if err := s.store.Put(ctx, s.cfg.BucketAvatars, key, bytes.NewReader(data), int64(len(data)), result.MIME); err != nil {
		return models.User{}, fmt.Errorf("store avatar: %w", err)
	}

	url := s.store.PublicURL(s.cfg.BucketAvatars, key)
	if err := s.users.UpdateAvatar(ctx, id, &url); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, fmt.Errorf("save avatar url: %w", err)
	}

	previous := target.AvatarURL
	if previous != nil {
		if oldKey, ok := storage.ObjectKey(s.cfg, s.cfg.BucketAvatars, *previous); ok {
			if err := s.queue.Enqueue(ctx, jobs.DeleteObject(s.cfg.BucketAvatars, oldKey)); err != nil {
				s.log.Warn().Err(err).Str("user_id", id).Str("object", oldKey).Msg("enqueue avatar cleanup failed")
			}
		}
	}

	updated := target
	updated.AvatarURL = &url
	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionUpdate,
		ResourceType: models.ResourceUser,
		ResourceID:   id,
		Old:          map[string]any{"avatarUrl": previous},
		New:          map[string]any{"avatarUrl": url},
	})
	return updated, nil
}

// read enforces the size limit, sniffs the format and sanitizes SVG documents.
func (s *AvatarService) read(input AvatarInput) ([]byte, sniffer.Result, error) {
	if input.File == nil {
		return nil, sniffer.Result{}, fileError("is required")
	}
	limit := s.cfg.MaxAvatarSize
	tooLarge := fileError(fmt.Sprintf("must be at most %d bytes", limit))
	if input.Size > limit {
		return nil, sniffer.Result{}, tooLarge
	}

	data, err := io.ReadAll(io.LimitReader(input.File, limit+1))
	if err != nil {
		return nil, sniffer.Result{}, fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, sniffer.Result{}, tooLarge
	}
	if len(data) == 0 {
		return nil, sniffer.Result{}, fileError("is empty")
	}

	result, err := sniffer.DetectHead(data[:min(len(data), sniffer.HeadSize)])
	if err != nil {
		return nil, sniffer.Result{}, fileError("must be a jpeg, png, gif, webp or svg image")
	}
	if !result.Matches(input.Declared) {
		return nil, sniffer.Result{}, fileError(fmt.Sprintf("declared type %s does not match contents", input.Declared))
	}

	if result.Type == sniffer.TypeSVG {
		data, err = svg.Sanitize(data)
		if err != nil {
			return nil, sniffer.Result{}, fileError("is not a valid svg document")
		}
	}
	return data, result, nil
}
