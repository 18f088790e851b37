package models

import (
	"fmt"
	"strings"
	"time"
)

type MessageStatus string

const (
	MessageStatusDraft     MessageStatus = "draft"
	MessageStatusPublished MessageStatus = "published"
	MessageStatusArchived  MessageStatus = "archived"
	MessageStatusFlagged   MessageStatus = "flagged"
	MessageStatusDeleted   MessageStatus = "deleted"
)

func ParseMessageStatus(s string) (MessageStatus, error) {
	switch status := MessageStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case MessageStatusDraft, MessageStatusPublished, MessageStatusArchived, MessageStatusFlagged, MessageStatusDeleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Message struct {
	ID           string
	Title        string
	Body         string
	Excerpt      *string
	Slug         string
	Status       MessageStatus
	AuthorID     string
	CategoryID   *string
	Tags         []string
	IsFeatured   bool
	IsPinned     bool
	ViewCount    int64
	LikeCount    int64
	CommentCount int64
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (m Message) Snapshot() map[string]any {
	return map[string]any{
		"id":         m.ID,
		"title":      m.Title,
		"slug":       m.Slug,
		"status":     m.Status,
		"authorId":   m.AuthorID,
		"categoryId": m.CategoryID,
		"tags":       m.Tags,
		"isFeatured": m.IsFeatured,
		"isPinned":   m.IsPinned,
	}
}
