package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apimw "github.com/ricirt/adpromo/internal/api/middleware"
	"github.com/ricirt/adpromo/internal/service"
)

// EntryHandler serves registration, queue listing and category lookup.
type EntryHandler struct {
	svc    *service.EntryService
	logger *zap.Logger
}

func NewEntryHandler(svc *service.EntryService, logger *zap.Logger) *EntryHandler {
	return &EntryHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/entries
//
// @Summary     Register, publish and queue an entry
// @Tags        entries
// @Accept      json
// @Produce     json
// @Param       body  body      service.SubmitRequest  true  "Entry payload; image/video data is base64"
// @Success     201   {object}  service.SubmitResult
// @Failure     409   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Failure     502   {object}  map[string]any
// @Router      /api/v1/entries [post]
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("create entry failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// List handles GET /api/v1/entries
//
// @Summary  List the queue in promotion order
// @Tags     entries
// @Produce  json
// @Param    promoted  query     bool  false  "Filter by promoted state"
// @Success  200       {object}  map[string]any
// @Failure  400       {object}  map[string]string
// @Router   /api/v1/entries [get]
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter *bool
	if v := r.URL.Query().Get("promoted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "promoted must be true or false")
			return
		}
		filter = &b
	}

	entries, err := h.svc.List(r.Context(), filter)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Error("list entries failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// Categories handles GET /api/v1/categories
//
// @Summary  Backend categories (name to id)
// @Tags     entries
// @Produce  json
// @Success  200  {object}  map[string]int64
// @Router   /api/v1/categories [get]
func (h *EntryHandler) Categories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Categories(r.Context()))
}
