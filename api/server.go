/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zerolog request log with the request ID attached
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests from the configured origins
  6. Timeout:    Request context deadline (REQUEST_TIMEOUT)

  Writes and previews are additionally rate limited per client and action.

ROUTE GROUPS:
  /health              Liveness and database check
  /api/loans/*         Loans, schedules, scenarios, tools, actual payments
  /api/calculator      Stand-alone calculator
  /api/demo/*          Demo portfolios (not in production)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - ratelimit.go: Per-client limiter
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/warp/loan-engine/loan"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Limiter        *RateLimiter // nil disables rate limiting
	Logger         zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderIdempotencyKey, HeaderUserID},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	limit := opts.Limiter

	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.With(limit.Limit("create")).Post("/", h.CreateLoan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.With(limit.Limit("commit")).Delete("/", h.ArchiveLoan)
				r.Get("/schedule", h.GetSchedule)
				r.Get("/schedule.csv", h.ExportSchedule)
				r.Get("/tips", h.GetTips)

				r.With(limit.Limit("preview")).Post("/preview", h.PreviewScenario)
				r.With(limit.Limit("preview")).Post("/refinance", h.Refinance)
				r.With(limit.Limit("preview")).Post("/optimize", h.Optimize)

				r.Route("/actual-payments", func(r chi.Router) {
					r.Get("/", h.ListActualPayments)
					r.With(limit.Limit("commit")).Post("/", h.RecordActualPayment)
				})

				r.Route("/events", func(r chi.Router) {
					r.Get("/", h.ListEvents)

					commit := r.With(limit.Limit("commit"))
					commit.Post("/extra-payment", h.CommitEvent(loan.EventExtraPayment))
					commit.Post("/rate-change", h.CommitEvent(loan.EventRateChange))
					commit.Post("/holiday", h.CommitEvent(loan.EventHoliday))
				})
			})
		})

		r.With(limit.Limit("preview")).Post("/calculator", h.Calculate)

		if h.DemoEnabled {
			r.Route("/demo", func(r chi.Router) {
				r.Get("/", h.ListDemos)
				r.Post("/load", h.LoadDemo)
			})
		}
	})

	return r
}

// requestLogger attaches a request-scoped zerolog logger to the context and
// logs one line per request.
func requestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("request")
		})
	}
}
