package handler

import (
	"encoding/json"
	"net/http"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/middleware"
	"tillsync-server/internal/service"
	"tillsync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type StoreHandler struct {
	service  *service.StoreService
	validate *validator.Validate
}

func NewStoreHandler(service *service.StoreService) *StoreHandler {
	return &StoreHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *StoreHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	store, err := h.service.Register(r.Context(), &req)
	if err != nil {
		response.InternalError(w, "failed to register store")
		return
	}

	response.Created(w, store)
}

func (h *StoreHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	store, err := h.service.Get(r.Context(), scope.StoreID)
	if err != nil {
		response.NotFound(w, "store not found")
		return
	}

	response.JSON(w, http.StatusOK, store)
}
