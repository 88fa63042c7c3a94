package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the handler onto the route table.
func NewRouter(handler *Handler) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(RequestLogger)

	router.Get("/health", handler.Health)

	router.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/basic-analysis", handler.BasicAnalysis)
		r.Get("/premium-analysis", handler.PremiumAnalysis)
		r.Get("/domain-analysis/{domain}", handler.DomainAnalysis)
		r.Get("/therapeutic-recommendations", handler.Recommendations)
		r.Get("/subscription-status", handler.SubscriptionStatus)
		r.Post("/signals", handler.RecordSignal)
	})

	return router
}
