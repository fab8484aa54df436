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
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = openai.GPT4oMini
)

// OpenAIProvider talks to the OpenAI chat and embedding APIs.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider for the given key and model. A nil
// httpClient uses the library default; pass the shared pooled client so
// connection reuse and timeouts are governed in one place.
func NewOpenAIProvider(apiKey, model string, httpClient *http.Client, logger *slog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingCredentials)
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) buildRequest(messages []Message, params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stop:     params.Stop,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	return req
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(messages, params))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: %w", ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		Provider:     p.Name(),
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, params GenerationParams, fn StreamFunc) (*Completion, error) {
	req := p.buildRequest(messages, params)
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	emitted := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if emitted {
				return nil, fmt.Errorf("openai chat stream after %d bytes: %w", full.Len(), ErrStreamInterrupted)
			}
			return nil, fmt.Errorf("openai chat stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		emitted = true
		if err := fn(ctx, delta); err != nil {
			return nil, fmt.Errorf("openai stream consumer: %w", err)
		}
	}
	content := full.String()
	return &Completion{
		Content:  content,
		Provider: p.Name(),
		Model:    p.model,
		Usage: Usage{
			PromptTokens:     EstimateMessages(messages),
			CompletionTokens: EstimateTokens(content),
			TotalTokens:      EstimateMessages(messages) + EstimateTokens(content),
		},
	}, nil
}

// Embed tries the large embedding model first and degrades to the small
// one, padding the result to EmbeddingDimensions.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedWith(ctx, text, openai.LargeEmbedding3)
	if err == nil {
		return vec, nil
	}
	p.logger.Warn("large embedding model failed, retrying with small",
		"provider", p.Name(), "error", err)
	vec, smallErr := p.embedWith(ctx, text, openai.SmallEmbedding3)
	if smallErr != nil {
		return nil, fmt.Errorf("openai embedding (large: %v): %w", err, smallErr)
	}
	return vec, nil
}

func (p *OpenAIProvider) embedWith(ctx context.Context, text string, model openai.EmbeddingModel) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	return FitDimensions(resp.Data[0].Embedding, EmbeddingDimensions), nil
}

// FitDimensions pads vec with zeros or truncates it so len(result) == dims.
func FitDimensions(vec []float32, dims int) []float32 {
	if len(vec) == dims {
		return vec
	}
	out := make([]float32, dims)
	copy(out, vec)
	return out
}
