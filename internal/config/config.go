package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is not set")

// Config holds application configuration values loaded from environment variables.
type Config struct {
	DatabaseURL     string
	AutoMigrate     bool
	JWTSecret       string
	HTTPPort        string
	TokenExpiration time.Duration
	SessionTTL      time.Duration

	DefaultProvider  string
	OllamaURL        string
	OllamaModel      string
	OllamaEmbedModel string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	OpenAIModel      string

	KnowledgeCatalog   string // Path to the YAML catalog; empty disables contexts
	RetrievalTopK      int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, ErrMissingDatabaseURL
	}

	tokenExpHours, err := getInt("JWT_EXPIRATION_HOURS", 24)
	if err != nil {
		return nil, err
	}
	sessionTTLMinutes, err := getInt("SESSION_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	topK, err := getInt("RETRIEVAL_TOP_K", 5)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", "default-super-secret-key"), // CHANGE THIS IN PRODUCTION!
		DatabaseURL:        dbURL,
		AutoMigrate:        autoMigrate,
		TokenExpiration:    time.Hour * time.Duration(tokenExpHours),
		SessionTTL:         time.Minute * time.Duration(sessionTTLMinutes),
		DefaultProvider:    getEnv("DEFAULT_PROVIDER", "ollama"),
		OllamaURL:          getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        getEnv("OLLAMA_MODEL", "llama3.1"),
		OllamaEmbedModel:   getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		KnowledgeCatalog:   getEnv("KNOWLEDGE_CATALOG", ""),
		RetrievalTopK:      topK,
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	log.Printf("Loaded config: Port=%s, DB_URL=***, TokenExp=%s, SessionTTL=%s, DefaultProvider=%s, OpenAIKey=%t",
		cfg.HTTPPort, cfg.TokenExpiration, cfg.SessionTTL, cfg.DefaultProvider, cfg.OpenAIAPIKey != "")

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getInt parses a positive integer variable.
func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s '%s': must be a positive integer", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
