// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// =============================================================================
// Provider fallback chain
// =============================================================================

// Chain tries a ranked list of providers in order. Chat-style calls never
// surface a vendor error to the caller: when every real provider fails the
// chain answers with the static placeholder, and when embedding fails
// everywhere it returns the all-zero vector. The only errors Chat returns
// are context cancellation.
//
// # Thread Safety
//
// Chain holds no mutable state after construction and is safe for
// concurrent use.
type Chain struct {
	providers []Provider
	static    *StaticProvider
	logger    *slog.Logger
}

// NewChain builds a chain over the given providers in ranked order. The
// static placeholder provider is always the implicit last entry; passing
// no providers yields a chain that only ever answers with placeholders.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		static:    NewStaticProvider(),
		logger:    logger,
	}
}

// Providers lists the configured provider names in ranked order, excluding
// the implicit static terminal.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Chat runs a blocking completion through the chain.
func (c *Chain) Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error) {
	for _, p := range c.providers {
		completion, err := p.Chat(ctx, messages, params)
		if err == nil {
			return completion, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chat aborted: %w", ctx.Err())
		}
		c.logger.Warn("provider chat failed, trying next",
			"provider", p.Name(), "error", err)
	}
	return c.static.Chat(ctx, messages, params)
}

// ChatStream runs a streaming completion through the chain. Providers that
// fail before emitting anything are skipped silently; a provider that fails
// mid-stream has already leaked partial output to fn, so the chain stops
// and returns ErrStreamInterrupted for the caller to recover from.
func (c *Chain) ChatStream(ctx context.Context, messages []Message, params GenerationParams, fn StreamFunc) (*Completion, error) {
	for _, p := range c.providers {
		completion, err := p.ChatStream(ctx, messages, params, fn)
		if err == nil {
			return completion, nil
		}
		if errors.Is(err, ErrStreamInterrupted) {
			c.logger.Error("provider stream interrupted mid-response",
				"provider", p.Name(), "error", err)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chat stream aborted: %w", ctx.Err())
		}
		c.logger.Warn("provider stream failed before first fragment, trying next",
			"provider", p.Name(), "error", err)
	}
	return c.static.ChatStream(ctx, messages, params, fn)
}

// Embed returns the first provider vector available, or the all-zero
// vector when no provider can embed. Callers must treat an all-zero
// vector as carrying no semantic signal.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	for _, p := range c.providers {
		vec, err := p.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed aborted: %w", ctx.Err())
		}
		c.logger.Warn("provider embedding failed, trying next",
			"provider", p.Name(), "error", err)
	}
	c.logger.Error("all providers failed to embed, returning zero vector")
	return ZeroVector(), nil
}

// ZeroVector returns a fresh all-zero vector of EmbeddingDimensions.
func ZeroVector() []float32 {
	return make([]float32, EmbeddingDimensions)
}

// IsZeroVector reports whether vec carries no signal.
func IsZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
