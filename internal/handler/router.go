package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/jobmarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса джобмаркет.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Group(func(r chi.Router) {
		r.Use(h.identity.Middleware)

		r.Get("/me", h.Me)

		r.Get("/contracts", h.GetContracts)
		r.Get("/contracts/{id}", h.GetContract)
		r.Get("/all-contracts", h.GetAllContracts)

		r.Get("/jobs/unpaid", h.GetUnpaidJobs)
		r.Post("/jobs/{jobId}/pay", h.PayJob)

		r.Post("/balances/deposit/{userId}", h.Deposit)

		r.Get("/admin/best-profession", h.BestProfession)
		r.Get("/admin/best-clients", h.BestClients)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
