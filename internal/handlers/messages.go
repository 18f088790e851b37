package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"portfolio/internal/apperr"
	"portfolio/internal/httpx"
	"portfolio/internal/query"
	"portfolio/internal/service"
)

// optionalBool parses a tri-state query flag: absent means "don't filter".
func optionalBool(c *gin.Context, key string) (*bool, *apperr.FieldError) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &apperr.FieldError{Field: key, Message: "must be true or false"}
	}
	return &v, nil
}

func (h HandlerSet) ListMessages(c *gin.Context) {
	q := service.MessageQuery{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Author:   c.Query("author"),
		Tag:      c.Query("tag"),
		Sort:     query.MessageSorts.Resolve(c.Query("sort"), c.Query("order")),
		Page:     query.ParsePage(c.Query("page"), c.Query("limit")),
	}

	var fields []apperr.FieldError
	var fe *apperr.FieldError
	if q.Featured, fe = optionalBool(c, "featured"); fe != nil {
		fields = append(fields, *fe)
	}
	if q.Pinned, fe = optionalBool(c, "pinned"); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		h.fail(c, apperr.Validation("invalid query parameters", fields...))
		return
	}

	messages, page, err := h.deps.Messages.List(c.Request.Context(), viewer(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", newList(messages, newMessageResponse, page))
}

func (h HandlerSet) GetMessage(c *gin.Context) {
	msg, err := h.deps.Messages.Get(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", gin.H{"message": newMessageResponse(msg)})
}

func (h HandlerSet) CreateMessage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, err := bindPayload(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg, err := h.deps.Messages.Create(c.Request.Context(), actor, payload)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.Created(c, "message created", gin.H{"message": newMessageResponse(msg)})
}

func (h HandlerSet) UpdateMessage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, err := bindPayload(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg, err := h.deps.Messages.Update(c.Request.Context(), actor, c.Param("id"), payload)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "message updated", gin.H{"message": newMessageResponse(msg)})
}

func (h HandlerSet) DeleteMessage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.deps.Messages.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "message deleted", nil)
}
