// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant provides the SmartPresence conversational assistant
// service.
//
// # Description
//
// The package wires the retrieval-augmented chat pipeline: embedding
// provider chain, vector store, retriever, LLM failover chain, response
// cache, conversation store, and the HTTP surface. Construction order is
// fixed: Config -> embedding (latched) -> vector store -> retriever ->
// LLM chain -> engine -> router. Every optional dependency (Weaviate,
// Postgres, Redis, OTel) degrades gracefully when absent so the service
// keeps answering in lightweight mode.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/SmartPresence/services/assistant/embedding"
	"github.com/AleutianAI/SmartPresence/services/assistant/memorystore"
	"github.com/AleutianAI/SmartPresence/services/assistant/observability"
	"github.com/AleutianAI/SmartPresence/services/assistant/retrieval"
	"github.com/AleutianAI/SmartPresence/services/assistant/routes"
	"github.com/AleutianAI/SmartPresence/services/assistant/services"
	"github.com/AleutianAI/SmartPresence/services/assistant/vectorstore"
	"github.com/AleutianAI/SmartPresence/services/llm"
)

// serviceName identifies this service in traces.
const serviceName = "assistant-service"

// Service is the assistant lifecycle contract.
//
// Run blocks until the server stops; Router exposes the configured gin
// engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

// service implements Service for production use.
type service struct {
	config        Config
	router        *gin.Engine
	engine        *services.ChatEngine
	store         vectorstore.Store
	embedder      embedding.Embedder
	llmChain      *llm.FailoverClient
	convStore     memorystore.ConversationStore
	pgStore       *memorystore.PostgresStore
	tracerCleanup func(context.Context)
}

// New constructs a ready-to-run assistant Service.
//
// # Description
//
// Initialization walks the fixed dependency order and never fails on an
// optional collaborator: a missing Weaviate, Postgres, or OTel endpoint
// logs a warning and degrades the relevant feature. Only a completely
// unconfigured LLM chain is fatal, since the service could then answer
// nothing at all.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	ctx := context.Background()

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			slog.Warn("Tracer initialization failed, continuing without export", "error", err)
		} else {
			s.tracerCleanup = cleanup
		}
	}

	// Embedding provider chain, latched once, wrapped in the LRU cache.
	s.embedder = embedding.NewCachedEmbedder(
		embedding.Resolve(ctx, embedding.ResolveConfigFromEnv()))

	// Vector store: remote Weaviate when configured, embedded otherwise.
	if err := s.initVectorStore(); err != nil {
		slog.Warn("Vector store unavailable, retrieval disabled", "error", err)
		s.store = unavailableStore{}
	}

	retriever := retrieval.New(s.store, s.embedder)

	// LLM failover chain.
	chain, err := llm.NewFailoverFromEnv()
	if err != nil {
		return nil, fmt.Errorf("configuring LLM providers: %w", err)
	}
	s.llmChain = chain

	// Conversation memory.
	s.convStore = memorystore.NopStore{}
	if s.config.ConversationDBURL != "" {
		pg, err := memorystore.NewPostgresStore(ctx, s.config.ConversationDBURL)
		if err != nil {
			slog.Warn("Conversation store unavailable, running without memory", "error", err)
		} else {
			s.pgStore = pg
			s.convStore = pg
		}
	} else {
		slog.Info("CONVERSATION_DB_URL not set, running without conversation memory")
	}

	s.engine = services.NewChatEngine(retriever, s.llmChain, s.convStore, services.NewResponseCacheFromEnv())

	s.initRouter()
	return s, nil
}

// Run implements Service. Blocks until the server stops.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting assistant server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router implements Service.
func (s *service) Router() *gin.Engine { return s.router }

// =============================================================================
// Private Initialization
// =============================================================================

// initTracer sets up the OTLP trace exporter.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("creating gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// initVectorStore selects and initializes the vector store backend.
func (s *service) initVectorStore() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
		}

		client, err := weaviate.NewClient(weaviate.Config{
			Host:   parsedURL.Host,
			Scheme: parsedURL.Scheme,
		})
		if err != nil {
			return fmt.Errorf("creating Weaviate client: %w", err)
		}

		store, err := vectorstore.NewWeaviateStore(client)
		if err != nil {
			return err
		}
		s.store = store
		slog.Info("Vector store backend: weaviate", "url", weaviateURL)
		return nil
	}

	store, err := vectorstore.NewChromemStore(s.config.ChromaPath, s.embedder)
	if err != nil {
		return err
	}
	s.store = store
	slog.Info("Vector store backend: embedded")
	return nil
}

// initRouter builds the gin engine and registers routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(serviceName))

	var metrics *observability.StreamingMetrics
	if *s.config.EnableMetrics {
		metrics = observability.NewStreamingMetrics()
		slog.Info("Prometheus metrics enabled")
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Engine:        s.engine,
		Store:         s.store,
		Embedder:      s.embedder,
		Metrics:       metrics,
		ProviderCount: s.llmChain.Providers(),
		AuthToken:     s.config.AuthToken,
	})
}

// cleanup releases held resources when Run exits.
func (s *service) cleanup() {
	if s.pgStore != nil {
		s.pgStore.Close()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// unavailableStore stands in when no backend could be initialized; every
// open fails with ErrNotFound so the retriever degrades to empty context.
type unavailableStore struct{}

func (unavailableStore) OpenOrCreate(context.Context, string) (vectorstore.Collection, error) {
	return nil, vectorstore.ErrNotFound
}
func (unavailableStore) Open(context.Context, string) (vectorstore.Collection, error) {
	return nil, vectorstore.ErrNotFound
}
func (unavailableStore) Delete(context.Context, string) error { return vectorstore.ErrNotFound }

// Compile-time interface compliance.
var _ Service = (*service)(nil)
var _ vectorstore.Store = unavailableStore{}
