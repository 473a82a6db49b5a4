package viewer

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(RequestLogger(s.logger, s.config.Verbose))
	r.Use(PrometheusMiddleware)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.health)
	r.Get("/view", s.view)
	r.Get("/alerts", s.listAlerts)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.SetHeader("Cache-Control", "no-store"))
		r.Get("/alerts", s.listAlerts)
		r.Get("/records", s.listRecords)
		r.Get("/templates", s.listTemplates)
	})

	return r
}
