package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trackhire/trackhire/internal/api"
	"github.com/trackhire/trackhire/internal/obs"
)

// Handler exposes the rotation service over the HTTP wire contract.
type Handler struct {
	uc  *Usecase
	log *zap.Logger
}

func NewHandler(uc *Usecase, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{uc: uc, log: log}
}

// Register mounts the auth routes. Login, refresh, and logout are
// public; everything behind RequireAuth needs a bearer token.
func (h *Handler) Register(r gin.IRouter) {
	grp := r.Group("/api/auth")
	grp.POST("/login", h.login)
	grp.POST("/refresh", h.refresh)
	grp.POST("/logout", h.logout)
	grp.GET("/me", h.RequireAuth(), h.me)
}

func (h *Handler) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	pair, err := h.uc.Login(c.Request.Context(), req.Email, req.Password, req.PersistSession)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: ErrInvalidCredentials.Error()})
			return
		}
		obs.WithTrace(c.Request.Context(), h.log).Error("login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, api.AuthResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshValue,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req api.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	pair, err := h.uc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			// One generic rejection for not-found, expired, revoked,
			// and race-lost: the response must not leak which.
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: ErrInvalidRefreshToken.Error()})
			return
		}
		obs.WithTrace(c.Request.Context(), h.log).Error("refresh", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, api.AuthResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshValue,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	var req api.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.uc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		obs.WithTrace(c.Request.Context(), h.log).Error("logout", zap.Error(err))
	}
	// Idempotent by contract: already-revoked and unknown tokens get the
	// same 204 as a live one.
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	ident, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, ident)
}
