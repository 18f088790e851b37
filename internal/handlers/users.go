package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"portfolio/internal/apperr"
	"portfolio/internal/httpx"
	"portfolio/internal/media/sniffer"
	"portfolio/internal/models"
	"portfolio/internal/query"
	"portfolio/internal/repository"
	"portfolio/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	filter := repository.UserFilter{
		Search: c.Query("search"),
		Sort:   query.UserSorts.Resolve(c.Query("sort"), c.Query("order")),
		Page:   query.ParsePage(c.Query("page"), c.Query("limit")),
	}
	var fields []apperr.FieldError
	if raw := c.Query("role"); raw != "" {
		role, err := models.ParseUserRole(raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "role", Message: "unknown role"})
		}
		filter.Role = role
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseUserStatus(raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "status", Message: "unknown status"})
		}
		filter.Status = status
	}
	if len(fields) > 0 {
		h.fail(c, apperr.Validation("invalid query parameters", fields...))
		return
	}

	users, page, err := h.deps.Users.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", newList(users, newUserResponse, page))
}

func (h HandlerSet) GetUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	user, err := h.deps.Users.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", gin.H{"user": newUserResponse(user)})
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, err := bindPayload(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.deps.Users.Update(c.Request.Context(), actor, c.Param("id"), payload)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "user updated", gin.H{"user": newUserResponse(user)})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	permanent := false
	if raw := c.Query("permanent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(c, apperr.Validation("invalid query parameters", apperr.FieldError{Field: "permanent", Message: "must be true or false"}))
			return
		}
		permanent = v
	}

	if err := h.deps.Users.Delete(c.Request.Context(), actor, c.Param("id"), permanent); err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "user deleted", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required,max=128"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, httpx.BindError(err))
		return
	}

	err := h.deps.Users.ChangePassword(c.Request.Context(), actor, c.Param("id"), service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "password changed", nil)
}

// multipartOverhead leaves room for boundaries and headers around the avatar part.
const multipartOverhead = 64 << 10

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	limit := h.cfg.Storage.MaxAvatarSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "must be a multipart file upload"
		switch {
		case errors.As(err, &tooLarge):
			msg = "must be at most " + strconv.FormatInt(limit, 10) + " bytes"
		case errors.Is(err, http.ErrMissingFile):
			msg = "is required"
		}
		h.fail(c, apperr.Validation("invalid avatar", apperr.FieldError{Field: "file", Message: msg}))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer file.Close()

	user, err := h.deps.Avatars.Upload(c.Request.Context(), actor, c.Param("id"), service.AvatarInput{
		File:     file,
		Size:     fileHeader.Size,
		Declared: sniffer.MimeTypeFromHTTP(http.Header(fileHeader.Header)),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "avatar updated", gin.H{"user": newUserResponse(user)})
}
