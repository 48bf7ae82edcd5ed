package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. /metrics is served only when
// gatherer is non-nil.
func NewRouter(
	scheduleSvc *service.ScheduleService,
	notifySvc *service.NotifyService,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	feeH := NewFeeStructureHandler(scheduleSvc)
	proposalH := NewProposalHandler(scheduleSvc)
	subscriptionH := NewSubscriptionHandler(notifySvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/fee-structures/validate", feeH.Validate)

	r.Route("/markets/{market}", func(r chi.Router) {
		r.Get("/fee-structure", feeH.GetCurrent)
		r.Get("/fee-structure/versions", feeH.ListVersions)
		r.Get("/fee-structure/versions/{version}", feeH.GetVersion)
		r.Post("/proposals", proposalH.Submit)
		r.Get("/proposals", proposalH.List)
	})

	r.Get("/proposals/{proposal_id}", proposalH.Get)
	r.Delete("/proposals/{proposal_id}", proposalH.Cancel)

	r.Post("/subscriptions", subscriptionH.Upsert)
	r.Get("/subscriptions", subscriptionH.List)
	r.Delete("/subscriptions/{subscription_id}", subscriptionH.Delete)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON rejects POST, PUT, and PATCH requests whose Content-Type
// is not application/json with 400 before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
