package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/studypartner/backend/internal/api/handlers"
	"github.com/studypartner/backend/internal/api/middleware"
	"github.com/studypartner/backend/internal/auth"
	"github.com/studypartner/backend/internal/config"
	"github.com/studypartner/backend/internal/document"
	"github.com/studypartner/backend/internal/queue"
	"github.com/studypartner/backend/internal/rag"
)

type Router struct {
	mux      *chi.Mux
	db       *pgxpool.Pool
	redis    *redis.Client
	cfg      *config.Config
	jwt      *auth.JWTMiddleware
	pipeline rag.Pipeline
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, pipeline rag.Pipeline) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		db:       db,
		redis:    rdb,
		cfg:      cfg,
		jwt:      auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		pipeline: pipeline,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	docSvc := document.NewService(rt.db)

	// The memory backend keeps the index in this process, so background
	// workers can never see its contents; uploads ingest inline instead of
	// being enqueued.
	var enqueuer handlers.IngestEnqueuer
	if rt.cfg.Vector.Backend != "memory" {
		enqueuer = queue.NewClient(rt.cfg.Redis)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		docH := handlers.NewDocumentHandler(docSvc, enqueuer, rt.pipeline)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Upload)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
			r.Get("/{id}/status", docH.Status)
		})

		studyH := handlers.NewStudyHandler(rt.pipeline)
		r.Route("/study", func(r chi.Router) {
			r.Post("/ask", studyH.Ask)
			r.Get("/categories", studyH.Categories)
		})
	})

	return r
}
