package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/internal/httpx"
	"portfolio/internal/service"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,max=128"`
	FirstName string `json:"firstName" binding:"required,max=50"`
	LastName  string `json:"lastName" binding:"required,max=50"`
	Username  string `json:"username" binding:"required"`
}

type authResponse struct {
	User            userResponse `json:"user"`
	AccessToken     string       `json:"accessToken"`
	RefreshToken    string       `json:"refreshToken"`
	AccessExpiresAt time.Time    `json:"accessExpiresAt"`
}

func newAuthResponse(result service.AuthResult) authResponse {
	return authResponse{
		User:            newUserResponse(result.User),
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		AccessExpiresAt: result.AccessExpiresAt,
	}
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, httpx.BindError(err))
		return
	}

	result, err := h.deps.Auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.Created(c, "registration successful", newAuthResponse(result))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, httpx.BindError(err))
		return
	}

	result, err := h.deps.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "login successful", newAuthResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type refreshResponse struct {
	AccessToken     string       `json:"accessToken"`
	AccessExpiresAt time.Time    `json:"accessExpiresAt"`
	User            userResponse `json:"user"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, httpx.BindError(err))
		return
	}

	result, err := h.deps.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "token refreshed", refreshResponse{
		AccessToken:     result.AccessToken,
		AccessExpiresAt: result.AccessExpiresAt,
		User:            newUserResponse(result.User),
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, httpx.BindError(err))
		return
	}

	if err := h.deps.Auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "logged out", nil)
}

func (h HandlerSet) LogoutAll(c *gin.Context) {
	user, ok := h.actor(c)
	if !ok {
		return
	}

	if err := h.deps.Auth.LogoutAll(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "logged out from all sessions", nil)
}

func (h HandlerSet) Profile(c *gin.Context) {
	user, ok := h.actor(c)
	if !ok {
		return
	}

	profile, err := h.deps.Auth.Profile(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	httpx.OK(c, "", gin.H{"user": newUserResponse(profile)})
}
