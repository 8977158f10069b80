package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the API. Everything under /api/v1 requires a resolved
// actor; health and metrics stay open.
func NewRouter(h *Handler, signingKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticator(signingKey))

		r.Get("/audit/recent", h.RecentAudit)
		r.Get("/imports/{batchID}", h.ImportReport)

		r.Route("/{kind}", func(r chi.Router) {
			r.Post("/", h.CreateEntity)
			r.Get("/{id}", h.GetEntity)
			r.Post("/{id}/transitions", h.Transition)
			r.Get("/{id}/audit", h.EntityTrail)
			r.Post("/{id}/residences/import", h.ImportResidences)
		})
	})

	return r
}
