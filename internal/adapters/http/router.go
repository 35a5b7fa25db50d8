package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const serviceName = "api"

type Deps struct {
	Uploader  ports.DocumentUploader
	Documents ports.DocumentService
	Validator ports.DocumentValidator
	Reviews   ports.ReviewService
	Exporter  ports.DocumentExporter
	Auth      *JWTAuth
	// Metrics is optional.
	Metrics *metrics.HTTPServerMetrics
	// Now is injectable for the per-actor rate limiter.
	Now func() time.Time
}

type Router struct {
	cfg  config.Config
	deps Deps
}

func NewRouter(cfg config.Config, deps Deps) *Router {
	if deps.Auth == nil {
		deps.Auth = NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware, recoverMiddleware)
	if rt.deps.Metrics != nil {
		r.Use(rt.deps.Metrics.Middleware(serviceName))
	}
	onReject := rt.rejectHook()
	r.Use(func(next http.Handler) http.Handler {
		return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	})
	r.Use(func(next http.Handler) http.Handler {
		return backpressureWithHook(next, rt.cfg.APIBackpressureMaxInFly, rt.cfg.APIBackpressureWait, onReject)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", RequestID: requestIDFromContext(r.Context())})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", RequestID: requestIDFromContext(r.Context())})
	})

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.json", rt.openAPI)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	r.Route("/v1/documents", func(r chi.Router) {
		r.Use(rt.deps.Auth.Middleware)
		if limiter := rt.actorLimiter(); limiter != nil {
			r.Use(limiter.Middleware(onReject))
		}

		view := requirePermission(domain.PermissionView)
		upload := requirePermission(domain.PermissionUpload)
		review := requirePermission(domain.PermissionReview)
		export := requirePermission(domain.PermissionExport)

		r.With(upload).Post("/", rt.uploadDocument)
		r.With(view).Get("/", rt.listDocuments)

		r.Route("/{id}", func(r chi.Router) {
			r.With(view).Get("/", rt.getDocument)
			r.With(upload).Delete("/", rt.deleteDocument)
			r.With(upload).Post("/reprocess", rt.reprocessDocument)
			r.With(view).Get("/file", rt.downloadDocument)
			r.With(view).Get("/audit", rt.listAuditTrail)

			r.With(view).Get("/extraction", rt.getExtraction)
			r.With(upload).Post("/extraction/retry", rt.reprocessDocument)

			r.With(review).Post("/validation", rt.validateDocument)
			r.With(view).Get("/validation", rt.getValidation)

			r.With(view).Get("/review", rt.getReview)
			r.With(review).Post("/review", rt.submitReview)
			r.With(review).Patch("/review", rt.submitReview)
			r.With(review).Post("/review/approve", rt.approveReview)
			r.With(review).Post("/review/reject", rt.rejectReview)

			r.With(export).Post("/export", rt.exportDocument)
			r.With(view).Get("/export", rt.getExport)
		})
	})
	return r
}

func (rt *Router) rejectHook() rejectHook {
	if rt.deps.Metrics == nil {
		return nil
	}
	return func(reason string) {
		rt.deps.Metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) actorLimiter() *SlidingWindowLimiter {
	limiter, err := NewSlidingWindowLimiter(rt.cfg.ActorRateLimitRequests, rt.cfg.ActorRateLimitWindow, rt.deps.Now)
	if err != nil {
		return nil
	}
	return limiter
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	raw, err := openAPIJSON(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
