package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ricirt/adpromo/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain errors to HTTP status codes.
func mapError(w http.ResponseWriter, err error) {
	var (
		perr *domain.PublishError
		serr *domain.SocialPostError
	)
	switch {
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrAlreadyPromoted),
		errors.Is(err, domain.ErrNotHead),
		errors.Is(err, domain.ErrStaleHead),
		errors.Is(err, domain.ErrPromotedMonotonic):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &perr):
		// Surface the backend's response verbatim.
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":          "publish failed",
			"backend_status": perr.Status,
			"backend_body":   perr.Body,
		})
	case errors.As(err, &serr):
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":         "social post failed",
			"social_status": serr.Status,
		})
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
