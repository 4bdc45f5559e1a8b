package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/service"
	"tillsync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	authService *service.AuthService
	validate    *validator.Validate
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// Login exchanges a store access code for a scoped terminal session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.TerminalLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.authService.TerminalLogin(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(w, "invalid store or access code")
			return
		}
		response.InternalError(w, "login failed")
		return
	}

	response.JSON(w, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.authService.Refresh(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrTerminalRevoked) {
			response.Unauthorized(w, "invalid refresh token")
			return
		}
		response.InternalError(w, "refresh failed")
		return
	}

	response.JSON(w, http.StatusOK, res)
}
