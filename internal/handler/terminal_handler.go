package handler

import (
	"errors"
	"net/http"

	"tillsync-server/internal/middleware"
	"tillsync-server/internal/repository"
	"tillsync-server/internal/service"
	"tillsync-server/pkg/response"

	"github.com/gorilla/mux"
)

type TerminalHandler struct {
	service *service.TerminalService
}

func NewTerminalHandler(service *service.TerminalService) *TerminalHandler {
	return &TerminalHandler{service: service}
}

func (h *TerminalHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	terminals, err := h.service.List(r.Context(), scope)
	if err != nil {
		response.InternalError(w, "failed to list terminals")
		return
	}

	response.JSON(w, http.StatusOK, terminals)
}

func (h *TerminalHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Revoke(r.Context(), scope, mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(w, "terminal not found")
			return
		}
		response.InternalError(w, "failed to revoke terminal")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "terminal revoked"})
}
