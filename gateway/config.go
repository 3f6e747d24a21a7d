// Copyright 2025 PromptGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the gateway needs to start. All secrets are
// required; a missing secret fails startup rather than surfacing later
// as a vendor 401.
type Config struct {
	Port string

	SciraAPIKey    string
	DeepSeekAPIKey string
	GeminiAPIKey   string
	JWTSecret      string

	MongoURI      string
	MongoDatabase string

	// RedisURL selects the shared redis rate limiter when set. Empty
	// means the in-process limiter.
	RedisURL string

	// ChainStages is the ordered provider sequence for /api/chain.
	ChainStages []string

	StageTimeout time.Duration
	ChainTimeout time.Duration
}

// stageFile is the YAML shape of an optional chain-stage override file.
type stageFile struct {
	Stages []string `yaml:"stages"`
}

// defaultChainStages is the pipeline used when no stage file is given.
var defaultChainStages = []string{"scira", "deepseek"}

// LoadConfig reads configuration from the environment. It returns an
// error naming every missing required variable at once.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		SciraAPIKey:    os.Getenv("SCIRA_API_KEY"),
		DeepSeekAPIKey: os.Getenv("DEEPSEEK_API_KEY"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		MongoURI:       getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "promptgate"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ChainStages:    defaultChainStages,
		StageTimeout:   DefaultStageTimeout,
		ChainTimeout:   DefaultChainTimeout,
	}

	var missing []string
	for name, value := range map[string]string{
		"SCIRA_API_KEY":    cfg.SciraAPIKey,
		"DEEPSEEK_API_KEY": cfg.DeepSeekAPIKey,
		"GEMINI_API_KEY":   cfg.GeminiAPIKey,
		"JWT_SECRET":       cfg.JWTSecret,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if path := os.Getenv("CHAIN_STAGE_FILE"); path != "" {
		stages, err := loadStageFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load chain stage file %s: %w", path, err)
		}
		cfg.ChainStages = stages
	}

	return cfg, nil
}

// loadStageFile parses a YAML stage list and validates it is non-empty.
func loadStageFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sf stageFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(sf.Stages) == 0 {
		return nil, fmt.Errorf("stage file declares no stages")
	}
	for i, name := range sf.Stages {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("stage %d has an empty name", i+1)
		}
	}
	return sf.Stages, nil
}

// getEnv returns an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
