package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/internal/apperr"
	"portfolio/internal/httpx"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
)

// parseTime accepts RFC3339 timestamps or plain dates. A plain "to" date covers
// the whole day.
func parseTime(raw string, endOfDay bool) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

func (h HandlerSet) ListAuditLogs(c *gin.Context) {
	filter := repository.AuditFilter{
		ActorID:      c.Query("actorId"),
		ResourceType: c.Query("resourceType"),
		ResourceID:   c.Query("resourceId"),
		Page:         query.ParsePage(c.Query("page"), c.Query("limit")),
	}

	var fields []apperr.FieldError
	if raw := c.Query("action"); raw != "" {
		action, err := models.ParseAuditAction(raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "action", Message: "unknown action"})
		}
		filter.Action = action
	}
	var ok bool
	if filter.From, ok = parseTime(c.Query("from"), false); !ok {
		fields = append(fields, apperr.FieldError{Field: "from", Message: "must be an RFC3339 timestamp or a date"})
	}
	if filter.To, ok = parseTime(c.Query("to"), true); !ok {
		fields = append(fields, apperr.FieldError{Field: "to", Message: "must be an RFC3339 timestamp or a date"})
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		fields = append(fields, apperr.FieldError{Field: "to", Message: "must not be before from"})
	}
	if len(fields) > 0 {
		h.fail(c, apperr.Validation("invalid query parameters", fields...))
		return
	}

	entries, page, err := h.deps.Audit.Query(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", newList(entries, newAuditResponse, page))
}
