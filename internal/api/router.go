package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"assistant-backend/internal/config"
	"assistant-backend/internal/handlers"
)

// requestTimeout bounds non-streaming requests. Conversation streams are not bounded.
const requestTimeout = 60 * time.Second

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	KnowledgeHandler    *handlers.KnowledgeHandlers
	Config              *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID) // Inject request ID into context
	r.Use(middleware.RealIP)    // Use X-Forwarded-For or X-Real-IP
	r.Use(middleware.Logger)    // Log requests
	r.Use(middleware.Recoverer) // Recover from panics, return 500

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{handlers.SessionKeyHeader},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Use(middleware.Timeout(requestTimeout))
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		// --- Mount Conversation Routes ---
		if deps.ConversationHandler != nil {
			r.Route("/conversations", func(r chi.Router) {
				r.Post("/{category}", deps.ConversationHandler.HandleConverse)
				r.With(middleware.Timeout(requestTimeout)).Get("/{sessionKey}/transcript", deps.ConversationHandler.HandleTranscript)
				r.With(middleware.Timeout(requestTimeout)).Delete("/{sessionKey}", deps.ConversationHandler.HandleEnd)
			})
		} else {
			log.Println("WARN: ConversationHandler dependency is nil, skipping /v1/conversations routes.")
		}

		// --- Mount Knowledge Routes ---
		if deps.KnowledgeHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))
				r.Post("/retrieval/search", deps.KnowledgeHandler.HandleSearch)
				r.Get("/retrieval/documents", deps.KnowledgeHandler.HandleListDocuments)
				r.Get("/knowledge/contexts", deps.KnowledgeHandler.HandleListContexts)
				r.Get("/providers", deps.KnowledgeHandler.HandleListProviders)
			})
		} else {
			log.Println("WARN: KnowledgeHandler dependency is nil, skipping /v1/retrieval and /v1/knowledge routes.")
		}
	})

	return r
}
