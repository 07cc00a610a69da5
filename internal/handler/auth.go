package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"convo-server/internal/auth"
	"convo-server/internal/middleware"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
	Throttle    *middleware.LoginThrottle
}

type registerBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password too short"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	now := time.Now().UnixMilli()
	if _, err := h.Store.CreateUser(c.Request.Context(), body.Username, body.Email, hash, now); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
			return
		}
		slog.Error("register: create user", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "User Created"})
}

// Login verifies username+password and mints a bearer token. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if h.Throttle != nil && !h.Throttle.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts"})
		return
	}

	user, err := h.Store.GetUserByUsername(c.Request.Context(), body.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		slog.Error("login: user lookup", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	if err := auth.ComparePassword(user.PasswordHash, body.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(user.Email, h.TokenConfig)
	if err != nil {
		slog.Error("login: create token", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	if err := h.Store.TouchAuthSession(c.Request.Context(), user.ID, time.Now().UnixMilli()); err != nil {
		slog.Error("login: touch auth session", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"expiry": int64(h.TokenConfig.Expiry.Seconds()),
	})
}
