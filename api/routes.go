package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/philtim/figured/metrics"
)

func addRoutes(r chi.Router, logger *slog.Logger, svc Service, broker *Broker, m *metrics.Metrics) {
	r.Get("/healthz", handleHealth(svc))
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/cards", handleListCards(svc))
		r.Post("/cards", handleAddCard(svc))
		r.Delete("/cards/{key}", handleRemoveCard(svc))
		r.Put("/home", handleSetHome(svc))
		r.Get("/locations", handleSearch(svc))
		r.Get("/ticks", handleTicks(logger, broker))
	})
}
