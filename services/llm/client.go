// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

// Message roles carried on chat turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// EmbeddingDimensions is the canonical vector width stored and searched
// throughout the system. Providers that produce narrower vectors are padded
// up to this width; wider vectors are truncated.
const EmbeddingDimensions = 3072

// Message is a single chat turn sent to or received from a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams tune a single completion request. Nil fields use the
// provider's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Usage reports token consumption for one exchange. Counts are estimates
// when the provider does not report them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a chat call.
type Completion struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// StreamFunc receives each content fragment as it arrives. Returning an
// error aborts the stream.
type StreamFunc func(ctx context.Context, fragment string) error

// Provider is a single vendor backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Name identifies the provider in logs and completions.
	Name() string

	// Chat runs a blocking completion over the full message list.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (*Completion, error)

	// ChatStream runs a streaming completion, invoking fn for every
	// fragment. The returned Completion carries the fully assembled text.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, fn StreamFunc) (*Completion, error)

	// Embed returns a vector of EmbeddingDimensions for the input text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
