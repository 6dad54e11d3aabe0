package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/api/handler"
	apimw "github.com/ricirt/adpromo/internal/api/middleware"
	"github.com/ricirt/adpromo/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. maxBody bounds request bodies, which carry base64 uploads.
func NewRouter(
	entries *service.EntryService,
	promotions *service.PromotionService,
	reg prometheus.Gatherer,
	maxBody int64,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(maxBody))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	eh := handler.NewEntryHandler(entries, logger)
	ph := handler.NewPromotionHandler(promotions, logger)
	hh := handler.NewHealthHandler()

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/entries", eh.Create)
		r.Get("/entries", eh.List)
		r.Get("/categories", eh.Categories)
		r.Post("/promotions", ph.Promote)
	})

	return r
}
