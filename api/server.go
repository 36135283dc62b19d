/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, carried into the request log
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     zap request log + latency histogram
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /health                      Liveness
  /metrics                     Prometheus (when enabled)
  /api/shifts/*                Shifts, sales, close wizard start, Z-report
  /api/cashiers/*              Open shift lookup, shift history
  /api/close-sessions/*        Close wizard
  /api/shipments/*             Receivable shipments, receiving wizard start
  /api/receiving/*             Receiving wizard
  /api/incentives/*            Levels, bonuses, leaderboard, store shares,
                               job point awards
  /api/ledger/*                Reconciliation audit trail
  /api/notifications           Wizard notices
  /api/scenarios/*             Demo scenarios

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions toggle optional surfaces.
type RouterOptions struct {
	AllowedOrigins []string
	ExposeMetrics  bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.log, h.metrics))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.ExposeMetrics {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.OpenShift)
			r.Get("/{id}", h.GetShift)
			r.Post("/{id}/sales", h.RecordSale)
			r.Post("/{id}/close", h.StartClose)
			r.Get("/{id}/zreport.xlsx", h.ZReport)
		})
		r.Get("/cashiers/{id}/shift", h.GetCashierShift)
		r.Get("/cashiers/{id}/shifts", h.ListCashierShifts)

		r.Route("/close-sessions/{sid}", func(r chi.Router) {
			r.Get("/", h.GetCloseSession)
			r.Post("/next", h.CloseNext)
			r.Post("/back", h.CloseBack)
			r.Put("/counts", h.SetCounts)
			r.Put("/reason", h.SetReason)
			r.Post("/finalize", h.Finalize)
			r.Delete("/", h.CancelClose)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", h.ListShipments)
			r.Post("/{id}/receive", h.StartReceiving)
		})

		r.Route("/receiving/{sid}", func(r chi.Router) {
			r.Get("/", h.GetReceiving)
			r.Post("/scan", h.Scan)
			r.Put("/items/{sku}", h.UpdateItem)
			r.Put("/lines/{line}", h.UpdateLine)
			r.Post("/receive-all", h.ReceiveAll)
			r.Post("/confirm", h.Confirm)
			r.Delete("/", h.CancelReceiving)
			r.Get("/report.xlsx", h.ReceivingReport)
		})

		r.Route("/incentives", func(r chi.Router) {
			r.Get("/workers/{id}", h.GetWorkerCard)
			r.Post("/workers/{id}/jobs", h.RecordJob)
			r.Get("/leaderboard", h.Leaderboard)
			r.Get("/bonus", h.Bonus)
			r.Get("/stores/{site}/share", h.StoreShare)
		})

		r.Get("/ledger/{entity}", h.GetLedger)
		r.Get("/notifications", h.GetNotifications)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
