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
)

// FallbackNotice prefixes every static completion so operators and users
// can tell a degraded answer from a real one.
const FallbackNotice = "[FALLBACK MODE]"

// StaticProvider is the terminal entry of a provider chain. It never
// fails a chat call and never produces an embedding, which keeps the
// assistant responsive when every real vendor is down or unconfigured.
type StaticProvider struct{}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider returns the placeholder provider.
func NewStaticProvider() *StaticProvider { return &StaticProvider{} }

func (p *StaticProvider) Name() string { return "static" }

func placeholderFor(messages []Message) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	if last == "" {
		return fmt.Sprintf("%s No language model is currently available. Please try again later.", FallbackNotice)
	}
	return fmt.Sprintf("%s No language model is currently available to answer: %q. Please try again later.", FallbackNotice, last)
}

func (p *StaticProvider) Chat(_ context.Context, messages []Message, _ GenerationParams) (*Completion, error) {
	content := placeholderFor(messages)
	return &Completion{
		Content:      content,
		Provider:     p.Name(),
		Model:        "static",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     EstimateMessages(messages),
			CompletionTokens: EstimateTokens(content),
			TotalTokens:      EstimateMessages(messages) + EstimateTokens(content),
		},
	}, nil
}

// ChatStream emits the placeholder as a single fragment.
func (p *StaticProvider) ChatStream(ctx context.Context, messages []Message, params GenerationParams, fn StreamFunc) (*Completion, error) {
	completion, _ := p.Chat(ctx, messages, params)
	if err := fn(ctx, completion.Content); err != nil {
		return nil, fmt.Errorf("static stream consumer: %w", err)
	}
	return completion, nil
}

func (p *StaticProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("static provider: %w", ErrEmbeddingUnavailable)
}
