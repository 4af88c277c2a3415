package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-engine/internal/api"
	apiMiddleware "github.com/phrazzld/scry-engine/internal/api/middleware"
	"github.com/phrazzld/scry-engine/internal/api/shared"
	"github.com/phrazzld/scry-engine/internal/service/auth"
)

// routes groups what the router needs so tests can mount it without a database.
type routes struct {
	jwt        auth.JWTService
	generation api.GenerationService
	reviews    api.ReviewService
	metrics    http.Handler
	ready      func(r *http.Request) error
}

func (app *application) routes() routes {
	return routes{
		jwt:        app.jwt,
		generation: app.generation,
		reviews:    app.reviews,
		metrics:    app.metrics.Handler(),
		ready: func(r *http.Request) error {
			return app.db.PingContext(r.Context())
		},
	}
}

// newRouter mounts the API under /api behind bearer authentication, plus
// unauthenticated health and metrics endpoints.
func newRouter(rt routes, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(log))

	authMiddleware := apiMiddleware.NewAuthMiddleware(rt.jwt)
	generationHandler := api.NewGenerationHandler(rt.generation, log)
	reviewHandler := api.NewReviewHandler(rt.reviews, log)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/subjects/{subjectID}/generations", generationHandler.Enqueue)
		r.Get("/subjects/{subjectID}/generations/{contentKind}", generationHandler.State)
		r.Get("/subjects/{subjectID}/failures", generationHandler.Failures)
		r.Delete("/subjects/{subjectID}/tasks", generationHandler.CancelSubjectTasks)
		r.Post("/subjects/{subjectID}/warmup", generationHandler.Warmup)
		r.Delete("/tasks/{taskID}", generationHandler.CancelTask)
		r.Delete("/tasks", generationHandler.CancelAllTasks)

		r.Post("/items/{itemKind}/{itemID}/review", reviewHandler.ReviewItem)
		r.Post("/reviews/batch", reviewHandler.ApplyBatch)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if rt.ready != nil {
			if err := rt.ready(r); err != nil {
				log.Warn("health check failed", "error", err)
				shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Database unavailable")
				return
			}
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	return r
}
