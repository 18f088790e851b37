package handlers

import (
	"encoding/json"
	"time"

	"portfolio/internal/models"
	"portfolio/internal/query"
)

type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Bio           *string    `json:"bio"`
	AvatarURL     *string    `json:"avatarUrl"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"emailVerified"`
	LoginCount    int        `json:"loginCount"`
	LastLoginAt   *time.Time `json:"lastLoginAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Bio:           u.Bio,
		AvatarURL:     u.AvatarURL,
		Role:          string(u.Role),
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		LoginCount:    u.LoginCount,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type messageResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Excerpt      *string    `json:"excerpt"`
	Slug         string     `json:"slug"`
	Status       string     `json:"status"`
	AuthorID     string     `json:"authorId"`
	CategoryID   *string    `json:"categoryId"`
	Tags         []string   `json:"tags"`
	IsFeatured   bool       `json:"isFeatured"`
	IsPinned     bool       `json:"isPinned"`
	ViewCount    int64      `json:"viewCount"`
	LikeCount    int64      `json:"likeCount"`
	CommentCount int64      `json:"commentCount"`
	PublishedAt  *time.Time `json:"publishedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func newMessageResponse(m models.Message) messageResponse {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return messageResponse{
		ID:           m.ID,
		Title:        m.Title,
		Body:         m.Body,
		Excerpt:      m.Excerpt,
		Slug:         m.Slug,
		Status:       string(m.Status),
		AuthorID:     m.AuthorID,
		CategoryID:   m.CategoryID,
		Tags:         tags,
		IsFeatured:   m.IsFeatured,
		IsPinned:     m.IsPinned,
		ViewCount:    m.ViewCount,
		LikeCount:    m.LikeCount,
		CommentCount: m.CommentCount,
		PublishedAt:  m.PublishedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type auditResponse struct {
	ID           string          `json:"id"`
	ActorID      *string         `json:"actorId"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   *string         `json:"resourceId"`
	OldValues    json.RawMessage `json:"oldValues,omitempty"`
	NewValues    json.RawMessage `json:"newValues,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func newAuditResponse(e models.AuditEntry) auditResponse {
	return auditResponse{
		ID:           e.ID,
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		OldValues:    e.OldValues,
		NewValues:    e.NewValues,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		CreatedAt:    e.CreatedAt,
	}
}

type listResponse[T any] struct {
	Items      []T              `json:"items"`
	Pagination query.Pagination `json:"pagination"`
}

func newList[S, T any](items []S, convert func(S) T, page query.Pagination) listResponse[T] {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return listResponse[T]{Items: out, Pagination: page}
}
