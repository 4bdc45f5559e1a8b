package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/middleware"
	"tillsync-server/internal/service"
	"tillsync-server/internal/websocket"
	"tillsync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type SyncHandler struct {
	pushService *service.PushService
	pullService *service.PullService
	wsManager   *websocket.Manager
	pushTimeout time.Duration
	pullTimeout time.Duration
	maxBatch    int
	validate    *validator.Validate
}

func NewSyncHandler(
	pushService *service.PushService,
	pullService *service.PullService,
	wsManager *websocket.Manager,
	pushTimeout, pullTimeout time.Duration,
	maxBatch int,
) *SyncHandler {
	return &SyncHandler{
		pushService: pushService,
		pullService: pullService,
		wsManager:   wsManager,
		pushTimeout: pushTimeout,
		pullTimeout: pullTimeout,
		maxBatch:    maxBatch,
		validate:    validator.New(),
	}
}

// Push applies a batch of client changes in supplied order and answers with
// one result per entry.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if h.maxBatch > 0 && len(req.Changes) > h.maxBatch {
		response.BadRequest(w, "batch exceeds maximum size")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.pushTimeout)
	defer cancel()

	results := h.pushService.Apply(ctx, scope, req.Changes)

	h.notifyStore(scope, results, req.Changes)

	response.Raw(w, http.StatusOK, &domain.PushResponse{Results: results})
}

// Pull streams every record in scope changed since the client watermark.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r)
	if scope.StoreID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var opts domain.PullOptions

	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			response.BadRequest(w, "invalid since parameter")
			return
		}
		opts.Since = since
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 {
			response.BadRequest(w, "invalid limit parameter")
			return
		}
		opts.Limit = limit
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.pullTimeout)
	defer cancel()

	payload, err := h.pullService.Changes(ctx, scope, opts)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.Raw(w, http.StatusOK, payload)
}

// notifyStore wakes the other terminals of the store after accepted writes.
// Best-effort; a dropped notification only delays their next pull.
func (h *SyncHandler) notifyStore(scope domain.Scope, results []domain.ChangeResult, changes []domain.ChangeEntry) {
	if h.wsManager == nil {
		return
	}

	tables := make(map[string]bool)
	for i, res := range results {
		if i >= len(changes) {
			break
		}
		switch res.Status {
		case domain.StatusAccepted:
			tables[changes[i].Table] = true
		case domain.StatusConflicted:
			// Other terminals may surface the conflict for back-office review.
			if msg, err := websocket.NewMessage(websocket.TypeConflict, &websocket.ConflictPayload{
				ConflictID: res.ConflictID,
				Table:      changes[i].Table,
				ServerID:   res.ServerID,
				LocalID:    res.LocalID,
			}); err == nil {
				h.wsManager.BroadcastToStore(scope.StoreID, msg, scope.TerminalID)
			}
		}
	}
	if len(tables) == 0 {
		return
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}

	msg, err := websocket.NewMessage(websocket.TypeRecordsChanged, &websocket.RecordsChangedPayload{
		Tables:     names,
		TerminalID: scope.TerminalID,
	})
	if err != nil {
		return
	}

	h.wsManager.BroadcastToStore(scope.StoreID, msg, scope.TerminalID)
}
