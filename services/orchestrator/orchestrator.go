// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator assembles the employee assistant from its parts:
// provider chain, retrieval, reasoning agent, conversation memory and
// the HTTP API. The cmd binaries only ever talk to this package.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/atlasworks/deskmind/pkg/logging"
	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/config"
	"github.com/atlasworks/deskmind/services/orchestrator/handlers"
	"github.com/atlasworks/deskmind/services/orchestrator/memory"
	"github.com/atlasworks/deskmind/services/orchestrator/retrieval"
	"github.com/atlasworks/deskmind/services/orchestrator/routes"
	"github.com/atlasworks/deskmind/services/orchestrator/services"
	"github.com/atlasworks/deskmind/services/orchestrator/shared"
	"github.com/atlasworks/deskmind/services/orchestrator/store"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// Orchestrator is the assembled assistant plus its HTTP server.
type Orchestrator struct {
	Assistant *services.Assistant
	Runtime   *shared.Runtime
	Logger    *slog.Logger

	cfg         config.Config
	info        handlers.RuntimeInfo
	shutdownFns []func(context.Context)
}

// New assembles the orchestrator from cfg. Missing backends degrade
// capabilities instead of failing startup: no providers means placeholder
// answers, no Weaviate means no grounding, no Postgres means per-process
// history.
func New(ctx context.Context, cfg config.Config) (*Orchestrator, error) {
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Service: "deskmind-orchestrator"})

	o := &Orchestrator{
		cfg:    cfg,
		Logger: logger,
		Runtime: shared.New(shared.Options{
			MaxConcurrentChats: int64(cfg.MaxConcurrentChats),
			Logger:             logger,
		}),
	}

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("trace export disabled", "endpoint", cfg.OTLPEndpoint, "error", err)
		} else {
			o.shutdownFns = append(o.shutdownFns, cleanup)
		}
	}

	chain := o.buildChain(ctx)
	searcher := o.buildSearcher()
	mem, persistent := o.buildMemory(ctx)

	runner := agent.NewRunner(agent.Deps{
		Chain:        chain,
		Searcher:     searcher,
		ToolsBaseURL: cfg.ToolsBaseURL,
		HTTPClient:   o.Runtime.HTTPClient(),
		SearchLimit:  cfg.SearchLimit,
	}, cfg.MaxIterations, logger)

	o.Assistant = services.NewAssistant(chain, runner, mem, searcher, o.Runtime, logger, services.Config{
		SearchLimit: cfg.SearchLimit,
		Temperature: cfg.Temperature,
	})
	o.info = handlers.RuntimeInfo{
		Providers:   chain.Providers(),
		Retrieval:   searcher != nil,
		Persistence: persistent,
		Version:     Version,
	}
	return o, nil
}

// buildChain constructs the ranked provider chain. Providers whose
// credentials are missing or whose client fails to construct are skipped
// with a warning.
func (o *Orchestrator) buildChain(ctx context.Context) *llm.Chain {
	var providers []llm.Provider
	for _, name := range o.cfg.ProviderOrder {
		switch name {
		case "openai":
			p, err := llm.NewOpenAIProvider(o.cfg.OpenAIAPIKey, o.cfg.OpenAIModel, o.Runtime.HTTPClient(), o.Logger)
			if err != nil {
				o.Logger.Warn("skipping provider", "provider", "openai", "error", err)
				continue
			}
			providers = append(providers, p)
		case "gemini":
			p, err := llm.NewGeminiProvider(ctx, o.cfg.GeminiAPIKey, o.cfg.GeminiModel, o.Logger)
			if err != nil {
				o.Logger.Warn("skipping provider", "provider", "gemini", "error", err)
				continue
			}
			providers = append(providers, p)
		default:
			o.Logger.Warn("unknown provider in order, skipping", "provider", name)
		}
	}
	if len(providers) == 0 {
		o.Logger.Warn("no model providers configured, every answer will be a placeholder")
	}
	return llm.NewChain(o.Logger, providers...)
}

func (o *Orchestrator) buildSearcher() retrieval.Searcher {
	if o.cfg.WeaviateURL == "" {
		o.Logger.Info("WEAVIATE_SERVICE_URL not set, running without retrieval grounding")
		return nil
	}
	searcher, err := retrieval.NewWeaviateSearcher(o.cfg.WeaviateURL, o.cfg.DocumentClass, o.Logger)
	if err != nil {
		o.Logger.Warn("weaviate unavailable, running without retrieval grounding", "error", err)
		return nil
	}
	return searcher
}

func (o *Orchestrator) buildMemory(ctx context.Context) (*memory.Memory, bool) {
	if !o.cfg.PostgresEnabled {
		o.Logger.Info("postgres not configured, conversation history is per-process")
		return memory.New(nil, nil, o.cfg.HistoryLimit, o.Logger), false
	}
	pool, err := store.Pool(ctx, o.cfg.Postgres)
	if err != nil {
		o.Logger.Error("postgres unavailable, conversation history is per-process", "error", err)
		return memory.New(nil, nil, o.cfg.HistoryLimit, o.Logger), false
	}
	sessions, err := store.NewSessionRepository(ctx, pool, o.Logger)
	if err != nil {
		o.Logger.Error("session schema setup failed, conversation history is per-process", "error", err)
		return memory.New(nil, nil, o.cfg.HistoryLimit, o.Logger), false
	}
	messages, err := store.NewMessageRepository(ctx, pool, o.Logger)
	if err != nil {
		o.Logger.Error("message schema setup failed, conversation history is per-process", "error", err)
		return memory.New(nil, nil, o.cfg.HistoryLimit, o.Logger), false
	}
	o.shutdownFns = append(o.shutdownFns, func(context.Context) { store.ClosePools() })
	return memory.New(sessions, messages, o.cfg.HistoryLimit, o.Logger), true
}

// Router builds the HTTP engine with all routes registered.
func (o *Orchestrator) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	routes.Setup(router, o.Assistant, o.info, o.Logger)
	return router
}

// Serve runs the HTTP API until ctx is canceled, then shuts down
// gracefully.
func (o *Orchestrator) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", o.cfg.Port),
		Handler:           o.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		o.Logger.Info("orchestrator listening", "addr", srv.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		o.Logger.Error("graceful shutdown failed", "error", err)
	}
	o.Close(shutdownCtx)
	return nil
}

// Close releases pools, exporters and background workers.
func (o *Orchestrator) Close(ctx context.Context) {
	for _, fn := range o.shutdownFns {
		fn(ctx)
	}
	o.Runtime.Shutdown()
}

func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial otlp collector: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("deskmind-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
