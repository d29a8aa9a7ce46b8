package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/purchases", handler.RecordPurchase)
	r.Get("/orders", handler.ListOrders)
	r.Get("/orders/events", handler.OrderEvents)
	r.Get("/price", handler.Price)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/distributions/run", handler.RunDistribution)
		r.Get("/orders", handler.ListAllOrders)
		r.Get("/liquidity/pending", handler.ListLiquidityPending)
		r.Post("/liquidity/mark", handler.MarkLiquidityAdded)
	})

	return &Server{Router: r}
}
