package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/middleware"
	"tillsync-server/internal/service"
	"tillsync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type ConflictHandler struct {
	service  *service.ConflictService
	validate *validator.Validate
}

func NewConflictHandler(service *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	filter, err := parseConflictFilter(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	list, err := h.service.List(r.Context(), scope, filter)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Raw(w, http.StatusOK, list)
}

func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	conflict, err := h.service.Get(r.Context(), scope, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, service.ErrConflictNotFound) {
			response.NotFound(w, "conflict not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.JSON(w, http.StatusOK, conflict)
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.Resolve(r.Context(), scope, mux.Vars(r)["id"], &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflictNotFound):
			response.NotFound(w, "conflict not found")
		case errors.Is(err, service.ErrConflictResolved):
			response.Conflict(w, "conflict already resolved")
		case errors.Is(err, service.ErrMergedPayloadRequired):
			response.BadRequest(w, "merged resolution requires merged_payload")
		case errors.Is(err, service.ErrRecordGone):
			response.Conflict(w, "record has been deleted")
		case errors.Is(err, service.ErrRecordNotFound):
			response.NotFound(w, "record not found")
		default:
			response.InternalError(w, err.Error())
		}
		return
	}

	if result == nil {
		response.JSON(w, http.StatusOK, map[string]interface{}{
			"message": "conflict resolved",
		})
		return
	}

	response.Raw(w, http.StatusOK, &domain.PushResponse{Results: []domain.ChangeResult{*result}})
}

func (h *ConflictHandler) Reject(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Reject(r.Context(), scope, mux.Vars(r)["id"]); err != nil {
		switch {
		case errors.Is(err, service.ErrConflictNotFound):
			response.NotFound(w, "conflict not found")
		case errors.Is(err, service.ErrConflictResolved):
			response.Conflict(w, "conflict already resolved")
		default:
			response.InternalError(w, err.Error())
		}
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "conflict rejected",
	})
}

func parseConflictFilter(r *http.Request) (domain.ConflictFilter, error) {
	var filter domain.ConflictFilter

	q := r.URL.Query()

	if table := q.Get("table"); table != "" {
		if _, ok := domain.LookupTable(table); !ok {
			return filter, errors.New("unknown table filter")
		}
		filter.Table = domain.Table(table)
	}
	if status := q.Get("status"); status != "" {
		filter.Status = domain.ConflictStatus(status)
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, errors.New("invalid from parameter")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, errors.New("invalid to parameter")
		}
		filter.To = t
	}
	if page := q.Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return filter, errors.New("invalid page parameter")
		}
		filter.Page = n
	}
	if perPage := q.Get("per_page"); perPage != "" {
		n, err := strconv.Atoi(perPage)
		if err != nil || n < 1 {
			return filter, errors.New("invalid per_page parameter")
		}
		filter.PerPage = n
	}

	return filter, nil
}
