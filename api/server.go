/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through zap
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the review screens
  5. Auth:       Bearer token → approval.Actor (everything under /api)

ROUTE GROUPS:
  /healthz                 Liveness + store ping
  /api/{kinds}/*           One group per registered record kind
  /api/scenarios/*         Demo scenarios (when enabled)

  Kinds are mounted from the approval registry, so importing a domain
  package (regularization, reimbursement) is enough to expose its queue.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)

	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		if h.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetScenario)
			})
		}

		for _, kind := range approval.ListKinds() {
			mountKind(r, h, kind)
		}
	})

	return r
}

func mountKind(r chi.Router, h *Handler, kind approval.Kind) {
	r.Route("/"+CollectionName(kind), func(r chi.Router) {
		r.Use(withKind(kind))
		r.Get("/", h.ListRecords)
		r.Post("/", h.SubmitRecord)
		r.Get("/stats", h.Stats)
		r.Post("/bulk", h.BulkAction)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRecord)
			r.Patch("/{level}-approve", h.ApproveRecord)
			r.Patch("/reject", h.RejectRecord)
			r.Patch("/notes", h.UpdateNotes)
			if kind.Payable() {
				r.Patch("/mark-paid", h.MarkPaid)
			}
		})
	})
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
