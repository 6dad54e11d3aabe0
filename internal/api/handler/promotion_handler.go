package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apimw "github.com/ricirt/adpromo/internal/api/middleware"
	"github.com/ricirt/adpromo/internal/domain"
	"github.com/ricirt/adpromo/internal/service"
)

// PromotionHandler triggers manual promotions.
type PromotionHandler struct {
	svc    *service.PromotionService
	logger *zap.Logger
}

func NewPromotionHandler(svc *service.PromotionService, logger *zap.Logger) *PromotionHandler {
	return &PromotionHandler{svc: svc, logger: logger}
}

type promoteRequest struct {
	Title string `json:"title"`
}

// Promote handles POST /api/v1/promotions
//
// An empty body or title promotes the head of the queue, like a scheduled trigger.
//
// @Summary     Promote an entry now
// @Tags        promotions
// @Accept      json
// @Produce     json
// @Param       body  body      promoteRequest  false  "Entry to promote"
// @Success     200   {object}  map[string]any
// @Failure     404   {object}  map[string]string
// @Failure     409   {object}  map[string]string
// @Failure     502   {object}  map[string]any
// @Router      /api/v1/promotions [post]
func (h *PromotionHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		e   *domain.Entry
		err error
	)
	if title := strings.TrimSpace(req.Title); title != "" {
		e, err = h.svc.PromoteByTitle(r.Context(), title)
	} else {
		e, err = h.svc.PromoteNext(r.Context())
	}

	switch {
	case errors.Is(err, domain.ErrNothingToPromote):
		respondJSON(w, http.StatusOK, map[string]any{"promoted": nil})
	case err != nil:
		apimw.Logger(r.Context(), h.logger).Warn("manual promotion failed", zap.Error(err))
		mapError(w, err)
	default:
		respondJSON(w, http.StatusOK, map[string]any{"promoted": e})
	}
}
