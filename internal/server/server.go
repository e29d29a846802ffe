package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/healthtrack/apiserver/config"
	"github.com/healthtrack/apiserver/internal/analysis"
	"github.com/healthtrack/apiserver/internal/auth"
	"github.com/healthtrack/apiserver/internal/db"
	"github.com/healthtrack/apiserver/internal/handlers"
	"github.com/healthtrack/apiserver/internal/logging"
	"github.com/healthtrack/apiserver/internal/mq"
	"github.com/healthtrack/apiserver/internal/services"
	"github.com/healthtrack/apiserver/internal/storage"
	"github.com/healthtrack/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *mq.Publisher
	backend    string
	log        *slog.Logger
}

// New constructs a Server. The durable backend is attempted first; when it is
// unreachable the service comes up on the volatile backend instead of failing
// startup, and the degradation is logged for operators.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logging.New("server")

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var (
		userRepo services.UserRepository
		docRepo  services.DocumentRepository
		dbConn   *sql.DB
		backend  = "postgres"
	)
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		log.Warn("durable backend unreachable, falling back to in-memory storage; data will not survive a restart",
			"error", err)
		backend = "memory"
		userRepo = store.NewMemoryUserRepository()
		docRepo = store.NewMemoryDocumentRepository()
	} else {
		userRepo = store.NewUserRepository(dbConn)
		docRepo = store.NewDocumentRepository(dbConn)
	}

	blobs := openBlobStore(ctx, cfg, backend, log)

	publisher := openPublisher(ctx, cfg, log)

	userService := services.NewUserService(userRepo)
	docService := services.NewDocumentService(docRepo, blobs, log)
	tokenService := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var events analysis.EventPublisher
	if publisher != nil {
		events = publisher
	}
	engine := analysis.NewEngine(
		docService,
		analysis.NewGeminiGenerator(cfg.Analysis),
		events,
		cfg.Analysis.Timeout,
		log,
	)

	authHandler := handlers.NewAuthHandler(userService, tokenService, log)
	docHandler := handlers.NewDocumentHandler(docService)
	analysisHandler := handlers.NewAnalysisHandler(engine, userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)

	registerRoutes := func(r chi.Router) {
		r.Get("/healthz", healthz(backend))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler)
		})
		r.Route("/documents", func(r chi.Router) {
			handlers.DocumentRouter(r, docHandler, authHandler.RequireAuth)
		})
		r.Route("/analysis", func(r chi.Router) {
			handlers.AnalysisRouter(r, analysisHandler, authHandler.RequireAuth)
		})
		r.With(authHandler.RequireAuth).Get("/dashboard", docHandler.Dashboard)
	}

	// One canonical handler set, mounted twice: the direct layout and the
	// historical /api-prefixed layout resolve to the same operations.
	registerRoutes(router)
	router.Route("/api", registerRoutes)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
		backend:    backend,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info("starting server", "addr", s.httpServer.Addr, "storage_backend", s.backend)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
	return s.httpServer.Close()
}

func healthz(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","storage_backend":%q}`, backend)
	}
}

func openBlobStore(ctx context.Context, cfg config.Config, backend string, log *slog.Logger) storage.BlobStore {
	if backend != "postgres" {
		// Payloads stay inline when the service is already volatile.
		return nil
	}

	var (
		blobs storage.BlobStore
		err   error
	)
	switch cfg.Blob.Backend {
	case "minio":
		blobs, err = storage.NewMinioStore(cfg.Blob.Minio)
	case "gcs":
		blobs, err = storage.NewGCSStore(ctx, cfg.Blob.GCS)
	case "":
		return nil
	default:
		log.Warn("unknown blob backend, storing payloads inline", "backend", cfg.Blob.Backend)
		return nil
	}
	if err == nil {
		err = blobs.EnsureBucket(ctx)
	}
	if err != nil {
		log.Warn("blob store unavailable, storing payloads inline", "error", err)
		return nil
	}
	return blobs
}

func openPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) *mq.Publisher {
	var (
		broker mq.Backend
		err    error
	)
	switch cfg.Events.Broker {
	case "pubsub":
		broker, err = mq.NewPubSubClient(ctx, cfg.Events.PubSub)
	case "rabbitmq":
		broker, err = mq.NewRabbitMQClient(cfg.Events.RabbitMQ)
	case "":
		return nil
	default:
		log.Warn("unknown events broker, publishing disabled", "broker", cfg.Events.Broker)
		return nil
	}
	if err != nil {
		log.Warn("events broker unavailable, publishing disabled", "error", err)
		return nil
	}
	return mq.NewPublisher(broker)
}
