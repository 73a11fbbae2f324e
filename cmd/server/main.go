package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assistant-backend/internal/api"
	"assistant-backend/internal/chat"
	"assistant-backend/internal/config"
	"assistant-backend/internal/handlers"
	"assistant-backend/internal/knowledge"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/retrieval"
	"assistant-backend/internal/services"
	"assistant-backend/internal/store/postgres"
)

func main() {
	log.Println("Starting Assistant Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize Database Connection Pool
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	dbpool, err := postgres.NewPool(dbCtx, cfg.DatabaseURL, cfg.AutoMigrate)
	if err != nil {
		log.Fatalf("FATAL: Unable to create database connection pool: %v\n", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		log.Fatalf("FATAL: Unable to ping database: %v\n", err)
	}
	log.Println("Database connection pool established and pinged successfully.")

	pgStore := postgres.NewPostgresStore(dbpool)

	// 3. Providers
	registry := providers.NewRegistry(cfg.DefaultProvider)
	registry.Register("ollama", providers.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel))
	if cfg.OpenAIAPIKey != "" {
		registry.Register("openai", providers.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel))
	} else {
		log.Println("WARN: OPENAI_API_KEY not set, openai provider disabled.")
	}
	registry.MustGet(cfg.DefaultProvider)

	// 4. Knowledge catalog and embedding stores
	catalog := knowledge.Empty()
	if cfg.KnowledgeCatalog != "" {
		catalog, err = knowledge.Load(cfg.KnowledgeCatalog)
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	} else {
		log.Println("WARN: KNOWLEDGE_CATALOG not set, no knowledge contexts available.")
	}

	embedder := providers.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel)
	stores, err := services.LoadEmbeddingStores(dbCtx, pgStore, embedder)
	if err != nil {
		log.Fatalf("FATAL: Failed to load embedding stores: %v", err)
	}
	merger, err := retrieval.NewMerger(stores)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialise retrieval: %v", err)
	}

	// 5. Services and handlers
	sessions := chat.NewSessionStore(cfg.SessionTTL, nil)
	authService := services.NewAuthService(pgStore, cfg)
	retrievalService := services.NewRetrievalService(merger, cfg.RetrievalTopK)
	chatService := services.NewChatService(sessions, registry, catalog, retrievalService)
	log.Println("Services initialized.")

	router := api.NewRouter(api.RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(authService),
		ConversationHandler: handlers.NewConversationHandlers(chatService),
		KnowledgeHandler:    handlers.NewKnowledgeHandlers(retrievalService, chatService),
		Config:              cfg,
	})
	log.Println("HTTP router configured.")

	// 6. Configure and Start HTTP Server
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays 0: conversation streams run as long as the model talks.
		IdleTimeout: 120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Could not listen on %s: %v\n", cfg.HTTPPort, err)
		}
		log.Println("Server listener routine stopped.")
	}()

	<-stopChan
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: Server graceful shutdown failed: %v", err)
		log.Fatal("Forcing shutdown due to error.")
	}

	log.Println("Server shutdown complete.")
}
