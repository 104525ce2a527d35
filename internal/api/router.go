package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router wires the handler set. Request logging lives in the entrypoint so
// every mounted surface shares one access log.
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/scheduler", func(r chi.Router) {
		r.Get("/status", h.SchedulerStatus)
		r.Post("/start", h.SchedulerStart)
		r.Post("/stop", h.SchedulerStop)
	})

	r.Route("/{tenant}", func(r chi.Router) {
		r.Post("/send-media", h.SendMedia)
		r.Get("/qrcode", h.QRCode)
		r.Get("/status", h.ConnectionStatus)
		r.Post("/reset", h.Reset)
		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.MessageStatus)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wa-prod"))
	})

	return r
}
