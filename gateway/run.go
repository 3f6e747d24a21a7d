// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"promptgate/gateway/llm"
	"promptgate/gateway/llm/deepseek"
	"promptgate/gateway/llm/gemini"
	"promptgate/gateway/llm/scira"
	"promptgate/gateway/shared/logger"
	"promptgate/gateway/store"
)

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 15 * time.Second

// Run wires the gateway together and serves until SIGINT/SIGTERM.
// Configuration errors are fatal: a gateway missing a vendor key must
// not come up and fail per-request instead.
func Run() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	gatewayLog = logger.New("gateway")
	startTime = time.Now()
	jwtSecret = []byte(cfg.JWTSecret)

	// Persistence.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := store.Connect(storeCtx, store.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		AppName:  "promptgate-gateway",
	})
	storeCancel()
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	defer client.Close(context.Background())

	userRepo = client.Users()
	chatRepo = client.Chats()

	// Rate limiting. Redis is opt-in; one instance runs fine on the
	// in-process limiter.
	if cfg.RedisURL != "" {
		redisLimiter, err := NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to initialize Redis rate limiter: %v", err)
		}
		defer redisLimiter.Close()
		rateLimiter = redisLimiter
		gatewayLog.Info("", "", "using Redis rate limiter", nil)
	} else {
		rateLimiter = NewMemoryRateLimiter()
		gatewayLog.Info("", "", "using in-memory rate limiter", nil)
	}

	// Providers.
	registry = llm.NewRegistry()
	if err := registerProviders(registry, cfg); err != nil {
		log.Fatalf("failed to initialize providers: %v", err)
	}

	chain, err = buildChain(registry, cfg)
	if err != nil {
		log.Fatalf("failed to build provider chain: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chain", chainHandler).Methods("POST")
	for _, name := range registry.Names() {
		api.HandleFunc("/"+name, providerHandler(name)).Methods("POST")
	}
	api.HandleFunc("/users/register", registerHandler).Methods("POST")
	api.HandleFunc("/users/login", loginHandler).Methods("POST")
	api.HandleFunc("/chat/save", chatSaveHandler).Methods("POST")
	api.HandleFunc("/chat/{userId}", chatGetHandler).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		gatewayLog.Info("", "", fmt.Sprintf("gateway listening on port %s", cfg.Port),
			map[string]interface{}{
				"providers": registry.Names(),
				"chain":     chain.StageNames(),
			})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	gatewayLog.Info("", "", "shutdown signal received, draining", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		gatewayLog.Error("", "", "graceful shutdown incomplete",
			map[string]interface{}{"error": err.Error()})
	}

	gatewayLog.Info("", "", "gateway stopped", nil)
}

// registerProviders constructs each vendor adapter from configuration and
// registers it under its route name.
func registerProviders(reg *llm.Registry, cfg *Config) error {
	sciraProvider, err := scira.NewProvider(scira.Config{APIKey: cfg.SciraAPIKey})
	if err != nil {
		return fmt.Errorf("scira: %w", err)
	}
	if err := reg.Register("scira", sciraProvider); err != nil {
		return err
	}

	deepseekProvider, err := deepseek.NewProvider(deepseek.Config{APIKey: cfg.DeepSeekAPIKey})
	if err != nil {
		return fmt.Errorf("deepseek: %w", err)
	}
	if err := reg.Register("deepseek", deepseekProvider); err != nil {
		return err
	}

	geminiProvider, err := gemini.NewProvider(gemini.Config{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	return reg.Register("gemini", geminiProvider)
}

// buildChain resolves the configured stage names against the registry.
func buildChain(reg *llm.Registry, cfg *Config) (*Chain, error) {
	stages := make([]ChainStage, 0, len(cfg.ChainStages))
	for _, name := range cfg.ChainStages {
		provider, err := reg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("chain stage %q: %w", name, err)
		}
		stages = append(stages, ChainStage{Name: name, Provider: provider})
	}
	return NewChain(stages, cfg.StageTimeout, cfg.ChainTimeout)
}
