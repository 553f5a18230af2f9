package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fluxbatch/internal/http/handlers"
	"fluxbatch/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.StartBatch)
		r.Get("/{id}", app.GetBatch)
		r.Delete("/{id}", app.CancelBatch)
		r.Get("/{id}/events", app.BatchEvents)
		r.Get("/{id}/archive", app.BatchArchive)
	})

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.ListHistory)
	})

	r.Route("/v1/favorites", func(r chi.Router) {
		r.Post("/", app.SaveFavorite)
		r.Get("/", app.ListFavorites)
		r.Delete("/{id}", app.DeleteFavorite)
	})

	return r
}
