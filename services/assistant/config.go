// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds assistant service configuration.
//
// # Description
//
// Values come from three layers, strongest last: built-in defaults, an
// optional YAML config file, and environment variables. Zero values mean
// "use the default"; New applies defaults for anything left unset.
//
// # Recognized environment variables
//
//	ASSISTANT_PORT          HTTP port (default 12310)
//	CHROMA_PATH             embedded vector store directory
//	WEAVIATE_SERVICE_URL    remote vector store (overrides embedded)
//	EMBEDDING_PRIMARY       force first embedding provider (local|huggingface|ollama)
//	HF_API_KEY, GROQ_API_KEY, GOOGLE_API_KEY, OPENAI_API_KEY
//	LLM_PROVIDER            pin the first LLM provider
//	REDIS_URL, REDIS_CACHE_ENABLED
//	CONVERSATION_DB_URL     Postgres DSN for conversation memory
//	ASSISTANT_AUTH_TOKEN    perimeter bearer token (empty disables)
//	OTEL_EXPORTER_OTLP_ENDPOINT
type Config struct {
	// Port is the HTTP server port. Default: 12310.
	Port int `yaml:"port"`

	// GinMode sets the gin framework mode ("debug", "release", "test").
	GinMode string `yaml:"gin_mode"`

	// ChromaPath overrides the embedded vector store directory.
	ChromaPath string `yaml:"chroma_path"`

	// WeaviateURL selects the remote vector store backend when set.
	WeaviateURL string `yaml:"weaviate_url"`

	// OTelEndpoint is the OTLP collector endpoint. Empty disables tracing
	// export.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// EnableMetrics controls the Prometheus endpoint. Default: true.
	EnableMetrics *bool `yaml:"enable_metrics"`

	// ConversationDBURL is the Postgres DSN for conversation memory.
	// Empty runs storeless (no history, no persistence).
	ConversationDBURL string `yaml:"conversation_db_url"`

	// AuthToken enables the perimeter bearer check when non-empty.
	AuthToken string `yaml:"auth_token"`
}

// LoadConfigFile reads a YAML config file. A missing path is not an error;
// it returns the zero Config.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
func (cfg Config) ApplyEnv() Config {
	if v := os.Getenv("ASSISTANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.GinMode = v
	}
	if v := os.Getenv("CHROMA_PATH"); v != "" {
		cfg.ChromaPath = v
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.WeaviateURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv("CONVERSATION_DB_URL"); v != "" {
		cfg.ConversationDBURL = v
	}
	if v := os.Getenv("ASSISTANT_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	return cfg
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.EnableMetrics == nil {
		enabled := true
		cfg.EnableMetrics = &enabled
	}
	return cfg
}
