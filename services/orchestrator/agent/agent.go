// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent runs the tool-augmented reasoning pass. A ReAct executor
// drives the provider chain through up to a fixed number of tool
// iterations; every tool call is recorded on the request's tracker.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/memory"
	"github.com/atlasworks/deskmind/services/orchestrator/retrieval"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

// DefaultMaxIterations bounds the ReAct tool loop.
const DefaultMaxIterations = 5

// Mode selects the reasoning style for a request.
type Mode string

const (
	// ModeNormal answers directly.
	ModeNormal Mode = "normal"

	// ModeThink instructs the model to reason step by step before
	// answering. Slower, used for analytical questions.
	ModeThink Mode = "think"
)

// ParseMode maps a wire value to a Mode, defaulting to normal.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeThink {
		return ModeThink
	}
	return ModeNormal
}

// =============================================================================
// Model adapter
// =============================================================================

// chainModel adapts the provider chain to the llms.Model interface the
// executor expects. The chain absorbs vendor failures, so GenerateContent
// only fails on context cancellation.
type chainModel struct {
	chain *llm.Chain
}

var _ llms.Model = (*chainModel)(nil)

func (m *chainModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	converted := make([]llm.Message, 0, len(messages))
	for _, mc := range messages {
		var text strings.Builder
		for _, part := range mc.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				text.WriteString(tp.Text)
			}
		}
		role := llm.RoleUser
		switch mc.Role {
		case llms.ChatMessageTypeSystem:
			role = llm.RoleSystem
		case llms.ChatMessageTypeAI:
			role = llm.RoleAssistant
		}
		converted = append(converted, llm.Message{Role: role, Content: text.String()})
	}

	params := llm.GenerationParams{Stop: opts.StopWords}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		params.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		params.MaxTokens = &maxTokens
	}

	completion, err := m.chain.Chat(ctx, converted, params)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: completion.Content}},
	}, nil
}

func (m *chainModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// =============================================================================
// Runner
// =============================================================================

// Deps are the shared backends tools draw on.
type Deps struct {
	Chain        *llm.Chain
	Searcher     retrieval.Searcher
	ToolsBaseURL string
	HTTPClient   *http.Client
	SearchLimit  int
}

// Runner builds and invokes a fresh executor per request. Executors are
// cheap to construct and binding them to the request's tracker keeps
// tool activity request-scoped.
type Runner struct {
	model         llms.Model
	deps          Deps
	maxIterations int
	logger        *slog.Logger
}

// NewRunner builds a Runner over the provider chain.
func NewRunner(deps Deps, maxIterations int, logger *slog.Logger) *Runner {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		model:         &chainModel{chain: deps.Chain},
		deps:          deps,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

func (r *Runner) buildTools(tracker *tooltrack.Tracker) []tools.Tool {
	var ts []tools.Tool
	if r.deps.Searcher != nil {
		ts = append(ts, &DocumentSearchTool{
			Chain:    r.deps.Chain,
			Searcher: r.deps.Searcher,
			Limit:    r.deps.SearchLimit,
		})
	}
	if r.deps.ToolsBaseURL != "" {
		ts = append(ts,
			&DepartmentsTool{BaseURL: r.deps.ToolsBaseURL, Client: r.deps.HTTPClient},
			&CurrentTimeTool{BaseURL: r.deps.ToolsBaseURL, Client: r.deps.HTTPClient},
			&CompanyInfoTool{BaseURL: r.deps.ToolsBaseURL, Client: r.deps.HTTPClient},
		)
	}
	return withTracking(ts, tracker, r.logger)
}

// ComposeInput folds history, retrieved context and the question into the
// single input string the ReAct prompt consumes.
func ComposeInput(question, contextBlock string, history []memory.Turn, mode Mode) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}
	if contextBlock != "" {
		b.WriteString("Relevant internal documents:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}
	if mode == ModeThink {
		b.WriteString("Think through the question step by step before giving the final answer.\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// Invoke runs one reasoning pass and returns the agent's answer.
func (r *Runner) Invoke(ctx context.Context, question, contextBlock string, history []memory.Turn, mode Mode, tracker *tooltrack.Tracker) (string, error) {
	executor, err := agents.Initialize(
		r.model,
		r.buildTools(tracker),
		agents.ZeroShotReactDescription,
		agents.WithMaxIterations(r.maxIterations),
	)
	if err != nil {
		return "", fmt.Errorf("initialize agent: %w", err)
	}

	input := ComposeInput(question, contextBlock, history, mode)
	result, err := chains.Call(ctx, executor, map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("run agent: %w", err)
	}
	output, ok := result["output"].(string)
	if !ok {
		return "", fmt.Errorf("agent returned no output (keys: %v)", keysOf(result))
	}
	return output, nil
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
