package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"portfolio/internal/apperr"
	"portfolio/internal/audit"
	"portfolio/internal/ids"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/slug"
)

const (
	// maxSlugAttempts bounds inserts retried after a concurrent slug collision.
	maxSlugAttempts = 5
	maxSlugSuffix   = 1000
	maxTags         = 20
	maxTagLength    = 50
)

type MessageService struct {
	messages MessageStore
	audit    AuditRecorder
	log      zerolog.Logger
	now      func() time.Time
}

func NewMessageService(messages MessageStore, recorder AuditRecorder, log zerolog.Logger) *MessageService {
	return &MessageService{
		messages: messages,
		audit:    recorder,
		log:      log,
		now:      time.Now,
	}
}

// MessageQuery carries raw listing parameters. Author "me" selects the viewer's own
// messages in every status except deleted.
type MessageQuery struct {
	Search   string
	Status   string
	Category string
	Author   string
	Tag      string
	Featured *bool
	Pinned   *bool
	Sort     query.Sort
	Page     query.Page
}

func canModerate(actor models.User, msg models.Message) bool {
	return actor.ID == msg.AuthorID || actor.Role.IsStaff()
}

func (s *MessageService) List(ctx context.Context, viewer *models.User, q MessageQuery) ([]models.Message, query.Pagination, error) {
	filter := repository.MessageFilter{
		Search:     q.Search,
		CategoryID: strings.TrimSpace(q.Category),
		AuthorID:   strings.TrimSpace(q.Author),
		Tag:        normalizeTag(q.Tag),
		Featured:   q.Featured,
		Pinned:     q.Pinned,
		Sort:       q.Sort,
		Page:       q.Page,
	}

	ownFeed := false
	if filter.AuthorID == "me" {
		if viewer == nil {
			return nil, query.Pagination{}, apperr.Unauthenticated("missing_token", "authentication required")
		}
		filter.AuthorID = viewer.ID
		ownFeed = true
	}
	if viewer != nil && filter.AuthorID == viewer.ID {
		ownFeed = true
	}

	staff := viewer != nil && viewer.Role.IsStaff()
	switch {
	case staff || ownFeed:
		if q.Status == "" {
			break
		}
		status, err := models.ParseMessageStatus(q.Status)
		if err != nil || (status == models.MessageStatusDeleted && !viewer.Role.IsAdmin()) {
			return nil, query.Pagination{}, apperr.Validation("invalid fields", apperr.FieldError{Field: "status", Message: "unknown status"})
		}
		filter.Status = status
	default:
		filter.Status = models.MessageStatusPublished
	}

	messages, total, err := s.messages.List(ctx, filter)
	if err != nil {
		return nil, query.Pagination{}, fmt.Errorf("list messages: %w", err)
	}
	return messages, q.Page.Paginate(total), nil
}

// find resolves an id or a slug.
func (s *MessageService) find(ctx context.Context, key string) (models.Message, error) {
	if ids.Valid(key) {
		msg, err := s.messages.GetByID(ctx, key)
		if !errors.Is(err, repository.ErrMessageNotFound) {
			return msg, err
		}
	}
	return s.messages.GetBySlug(ctx, key)
}

// visible applies the read rules: deleted rows only for admins, unpublished rows
// only for the author and staff.
func visible(viewer *models.User, msg models.Message) bool {
	switch msg.Status {
	case models.MessageStatusPublished:
		return true
	case models.MessageStatusDeleted:
		return viewer != nil && viewer.Role.IsAdmin()
	default:
		return viewer != nil && canModerate(*viewer, msg)
	}
}

// Get returns a message by id or slug. Reading a published message counts a view.
func (s *MessageService) Get(ctx context.Context, viewer *models.User, key string) (models.Message, error) {
	msg, err := s.find(ctx, key)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	if !visible(viewer, msg) {
		return models.Message{}, apperr.NotFound("message not found")
	}

	if msg.Status == models.MessageStatusPublished {
		count, err := s.messages.IncrementViews(ctx, msg.ID)
		if err != nil {
			return models.Message{}, fmt.Errorf("count view: %w", err)
		}
		msg.ViewCount = count
	}
	return msg, nil
}

func (s *MessageService) Create(ctx context.Context, actor models.User, payload map[string]any) (models.Message, error) {
	set, err := query.MessageFields.Filter(payload, actor.Role)
	if err != nil {
		return models.Message{}, err
	}
	var missing []apperr.FieldError
	if !set.Has(query.ColTitle) {
		missing = append(missing, apperr.FieldError{Field: "title", Message: "is required"})
	}
	if !set.Has(query.ColBody) {
		missing = append(missing, apperr.FieldError{Field: "body", Message: "is required"})
	}
	if len(missing) > 0 {
		return models.Message{}, apperr.Validation("invalid fields", missing...)
	}
	tags, _, err := parseTags(payload)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:       ids.New(),
		Status:   models.MessageStatusDraft,
		AuthorID: actor.ID,
		Tags:     tags,
	}
	applyAssignments(&msg, set)
	if msg.Status == models.MessageStatusPublished {
		now := s.now().UTC()
		msg.PublishedAt = &now
	}

	base := slug.Make(msg.Title)
	for attempt := 1; ; attempt++ {
		msg.Slug, err = s.uniqueSlug(ctx, base, "")
		if err != nil {
			return models.Message{}, err
		}
		created, err := s.messages.Create(ctx, msg)
		if err == nil {
			msg = created
			break
		}
		if !errors.Is(err, repository.ErrSlugTaken) {
			return models.Message{}, fmt.Errorf("create message: %w", err)
		}
		if attempt == maxSlugAttempts {
			return models.Message{}, apperr.Conflict("could not allocate a unique slug, please retry", err)
		}
		s.log.Debug().Str("slug", msg.Slug).Int("attempt", attempt).Msg("slug taken concurrently, retrying")
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionCreate,
		ResourceType: models.ResourceMessage,
		ResourceID:   msg.ID,
		New:          msg.Snapshot(),
	})
	return msg, nil
}

// uniqueSlug returns base, or base-1, base-2, ... for the first candidate not used by
// another message.
func (s *MessageService) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	for n := 0; n <= maxSlugSuffix; n++ {
		candidate := slug.WithSuffix(base, n)
		exists, err := s.messages.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", apperr.Conflict("could not allocate a unique slug, please retry", nil)
}

func applyAssignments(msg *models.Message, set query.Assignments) {
	for _, a := range set {
		switch a.Column {
		case query.ColTitle:
			msg.Title = a.Value.(string)
		case query.ColBody:
			msg.Body = a.Value.(string)
		case query.ColExcerpt:
			msg.Excerpt = a.Value.(*string)
		case query.ColCategoryID:
			msg.CategoryID = a.Value.(*string)
		case query.ColStatus:
			msg.Status = a.Value.(models.MessageStatus)
		case query.ColIsFeatured:
			msg.IsFeatured = a.Value.(bool)
		case query.ColIsPinned:
			msg.IsPinned = a.Value.(bool)
		}
	}
}

// loadForWrite hides deleted messages and enforces ownership.
func (s *MessageService) loadForWrite(ctx context.Context, actor models.User, id string) (models.Message, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if errors.Is(err, repository.ErrMessageNotFound) || (err == nil && msg.Status == models.MessageStatusDeleted) {
		return models.Message{}, apperr.NotFound("message not found")
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	if !canModerate(actor, msg) {
		return models.Message{}, apperr.Forbidden("you can only modify your own messages")
	}
	return msg, nil
}

func (s *MessageService) Update(ctx context.Context, actor models.User, id string, payload map[string]any) (models.Message, error) {
	current, err := s.loadForWrite(ctx, actor, id)
	if err != nil {
		return models.Message{}, err
	}

	set, err := query.MessageFields.Filter(payload, actor.Role)
	if err != nil {
		return models.Message{}, err
	}
	// A flagged message stays flagged until staff release it.
	if current.Status == models.MessageStatusFlagged && !actor.Role.IsStaff() {
		set = set.Without(query.ColStatus)
	}
	tags, tagsSupplied, err := parseTags(payload)
	if err != nil {
		return models.Message{}, err
	}
	if len(set) == 0 && !tagsSupplied {
		return models.Message{}, apperr.Validation(query.ErrEmptyUpdate.Error())
	}
	if !tagsSupplied {
		tags = nil
	}

	if v, ok := set.Lookup(query.ColStatus); ok && v.(models.MessageStatus) == models.MessageStatusPublished && current.PublishedAt == nil {
		set = set.Set(query.ColPublishedAt, s.now().UTC())
	}

	title, titleChanged := set.Lookup(query.ColTitle)
	titleChanged = titleChanged && title.(string) != current.Title

	var updated models.Message
	for attempt := 1; ; attempt++ {
		if titleChanged {
			next, err := s.uniqueSlug(ctx, slug.Make(title.(string)), id)
			if err != nil {
				return models.Message{}, err
			}
			set = set.Set(query.ColSlug, next)
		}
		updated, err = s.messages.Update(ctx, id, set, tags)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, repository.ErrMessageNotFound):
			return models.Message{}, apperr.NotFound("message not found")
		case !errors.Is(err, repository.ErrSlugTaken):
			return models.Message{}, fmt.Errorf("update message: %w", err)
		case attempt == maxSlugAttempts:
			return models.Message{}, apperr.Conflict("could not allocate a unique slug, please retry", err)
		}
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionUpdate,
		ResourceType: models.ResourceMessage,
		ResourceID:   id,
		Old:          current.Snapshot(),
		New:          updated.Snapshot(),
	})
	return updated, nil
}

func (s *MessageService) Delete(ctx context.Context, actor models.User, id string) error {
	current, err := s.loadForWrite(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.messages.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return apperr.NotFound("message not found")
		}
		return fmt.Errorf("delete message: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.ID,
		Action:       models.AuditActionDelete,
		ResourceType: models.ResourceMessage,
		ResourceID:   id,
		Old:          current.Snapshot(),
	})
	return nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// parseTags reads the optional "tags" array. Tags are lowercased and deduplicated;
// an explicit null or empty array clears them.
func parseTags(payload map[string]any) ([]string, bool, error) {
	raw, ok := payload["tags"]
	if !ok {
		return nil, false, nil
	}
	invalid := func(msg string) error {
		return apperr.Validation("invalid fields", apperr.FieldError{Field: "tags", Message: msg})
	}
	if raw == nil {
		return []string{}, true, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, true, invalid("must be an array of strings")
	}
	if len(items) > maxTags {
		return nil, true, invalid(fmt.Sprintf("at most %d tags", maxTags))
	}

	tags := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, true, invalid("must be an array of strings")
		}
		tag := normalizeTag(s)
		if tag == "" || utf8.RuneCountInString(tag) > maxTagLength {
			return nil, true, invalid(fmt.Sprintf("each tag must be 1-%d characters", maxTagLength))
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags, true, nil
}
