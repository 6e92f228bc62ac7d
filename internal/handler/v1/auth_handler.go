package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionService interface {
	RefreshToken(ctx context.Context, refreshToken string, ip string) (*domain.TokenPair, error)
}

type AuthHandler struct {
	svc SessionService
	log *zap.Logger
}

func NewAuthHandler(svc SessionService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenPairResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken, c.ClientIP())
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, service.ErrAccountInactive):
		respondError(c, http.StatusForbidden, err.Error())
		return
	case err != nil:
		h.log.Error("token refresh failed",
			zap.String("request_id", c.GetString(ctxKeyRequestID)),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, "internal server error")
		return
	}

	respondOK(c, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		TokenType:    pair.TokenType,
	}, "")
}
