package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tegelkonst/cotizador/internal/api"
	"github.com/tegelkonst/cotizador/internal/gateway"
	"github.com/tegelkonst/cotizador/internal/llm"
	"github.com/tegelkonst/cotizador/internal/repository/sqlite"
	"github.com/tegelkonst/cotizador/internal/validator"
)

const defaultGeminiModel = "gemini-2.5-flash-preview-05-20"

func logConfig() {
	log.Println("=== Cotizador Configuration ===")

	envVars := []struct {
		name         string
		defaultValue string
	}{
		{"COTIZADOR_API_PORT", "8080"},
		{"COTIZADOR_DB_PATH", "data/cotizador.db"},
		{"COTIZADOR_CORS_ORIGINS", "* (allow all)"},
		{"GEMINI_MODEL", defaultGeminiModel},
	}

	for _, ev := range envVars {
		value := os.Getenv(ev.name)
		if value == "" {
			log.Printf("  %s: %s (default)", ev.name, ev.defaultValue)
		} else {
			log.Printf("  %s: %s", ev.name, value)
		}
	}

	// Log API key availability (not the actual key)
	if os.Getenv("GEMINI_API_KEY") != "" {
		log.Println("  GEMINI_API_KEY: configured")
	} else {
		log.Println("  GEMINI_API_KEY: (none)")
	}

	log.Println("===============================")
}

func main() {
	logConfig()

	port := os.Getenv("COTIZADOR_API_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("COTIZADOR_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join("data", "cotizador.db")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize repository
	repo, err := sqlite.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer repo.Close()

	// Initialize validator
	val, err := validator.New()
	if err != nil {
		log.Fatalf("Failed to initialize validator: %v", err)
	}

	// Initialize the AI gateway (optional - sessions can still be read and
	// edited without it, generation endpoints answer 503)
	var gw *gateway.Gateway
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			model = defaultGeminiModel
		}
		client := llm.NewGeminiClient(apiKey, model)
		gw, err = gateway.New(client, val)
		if err != nil {
			log.Fatalf("Failed to initialize gateway: %v", err)
		}
		log.Printf("Gemini client initialized (model: %s)", model)
	} else {
		log.Println("Warning: GEMINI_API_KEY not set - generation endpoints will be disabled")
	}

	// Initialize API handler
	handler := api.NewHandler(repo, gw)

	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Register API routes
	handler.RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = api.Logger(h)
	corsOrigins := os.Getenv("COTIZADOR_CORS_ORIGINS")
	h = api.CORS(api.CORSConfig{AllowedOrigins: corsOrigins})(h)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for generation with backoff
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Println("Shutting down server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	log.Printf("Database: %s", dbPath)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
