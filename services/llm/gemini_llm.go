// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	defaultGeminiModel          = "gemini-1.5-flash"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// GeminiProvider talks to the Gemini API.
type GeminiProvider struct {
	model     *googleai.GoogleAI
	modelName string
	logger    *slog.Logger
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider builds a provider for the given key and model.
func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingCredentials)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
		googleai.WithDefaultEmbeddingModel(defaultGeminiEmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{model: client, modelName: model, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func buildGeminiContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func buildGeminiOptions(params GenerationParams) []llms.CallOption {
	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error) {
	resp, err := p.model.GenerateContent(ctx, buildGeminiContent(messages), buildGeminiOptions(params)...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("gemini generate: %w", ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	content := choice.Content
	return &Completion{
		Content:      content,
		Provider:     p.Name(),
		Model:        p.modelName,
		FinishReason: choice.StopReason,
		Usage: Usage{
			PromptTokens:     EstimateMessages(messages),
			CompletionTokens: EstimateTokens(content),
			TotalTokens:      EstimateMessages(messages) + EstimateTokens(content),
		},
	}, nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, messages []Message, params GenerationParams, fn StreamFunc) (*Completion, error) {
	var full strings.Builder
	emitted := false
	opts := buildGeminiOptions(params)
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		full.Write(chunk)
		emitted = true
		return fn(ctx, string(chunk))
	}))

	_, err := p.model.GenerateContent(ctx, buildGeminiContent(messages), opts...)
	if err != nil {
		if emitted {
			return nil, fmt.Errorf("gemini stream after %d bytes: %w", full.Len(), ErrStreamInterrupted)
		}
		return nil, fmt.Errorf("gemini stream: %w", err)
	}
	content := full.String()
	return &Completion{
		Content:  content,
		Provider: p.Name(),
		Model:    p.modelName,
		Usage: Usage{
			PromptTokens:     EstimateMessages(messages),
			CompletionTokens: EstimateTokens(content),
			TotalTokens:      EstimateMessages(messages) + EstimateTokens(content),
		},
	}, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.model.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("gemini embedding: %w", ErrEmptyResponse)
	}
	return FitDimensions(vecs[0], EmbeddingDimensions), nil
}
