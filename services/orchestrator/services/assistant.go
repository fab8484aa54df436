// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the chat orchestration pipeline: retrieval
// grounding, tool-augmented reasoning, answer synthesis and history
// persistence. Handlers and the CLI both drive chats through the
// Assistant; neither talks to providers or the store directly.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/memory"
	"github.com/atlasworks/deskmind/services/orchestrator/observability"
	"github.com/atlasworks/deskmind/services/orchestrator/retrieval"
	"github.com/atlasworks/deskmind/services/orchestrator/shared"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

var tracer = otel.Tracer("deskmind.orchestrator.services")

// Pipeline phases, recorded on spans and logs.
const (
	phaseEmbedding    = "EMBEDDING_QUERY"
	phaseReasoning    = "REASONING"
	phaseSynthesizing = "SYNTHESIZING_ANSWER"
	phasePersisting   = "PERSISTING"
	phaseDone         = "DONE"
)

// apologyAnswer is returned when synthesis itself fails. The user gets a
// readable sentence, never a raw error.
const apologyAnswer = "I'm sorry, something went wrong while preparing your answer. Please try again."

// Completer is the slice of the provider chain the assistant uses.
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (*llm.Completion, error)
	ChatStream(ctx context.Context, messages []llm.Message, params llm.GenerationParams, fn llm.StreamFunc) (*llm.Completion, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Completer = (*llm.Chain)(nil)

// Reasoner runs the tool-augmented reasoning pass.
type Reasoner interface {
	Invoke(ctx context.Context, question, contextBlock string, history []memory.Turn, mode agent.Mode, tracker *tooltrack.Tracker) (string, error)
}

var _ Reasoner = (*agent.Runner)(nil)

// =============================================================================
// Assistant
// =============================================================================

// Config tunes an Assistant.
type Config struct {
	// SearchLimit caps documents retrieved for grounding.
	SearchLimit int

	// Temperature applies to the synthesis call.
	Temperature float32
}

// Assistant orchestrates one chat exchange end to end.
//
// # Thread Safety
//
// Safe for concurrent use. Each request gets its own conversation handle
// and tool tracker; admission control bounds requests in flight.
type Assistant struct {
	completer Completer
	reasoner  Reasoner
	memory    *memory.Memory
	searcher  retrieval.Searcher
	runtime   *shared.Runtime
	metrics   *observability.ChatMetrics
	logger    *slog.Logger
	cfg       Config
}

// NewAssistant wires the pipeline. searcher may be nil, which disables
// retrieval grounding (lightweight mode).
func NewAssistant(completer Completer, reasoner Reasoner, mem *memory.Memory, searcher retrieval.Searcher, runtime *shared.Runtime, logger *slog.Logger, cfg Config) *Assistant {
	if runtime == nil {
		runtime = shared.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = retrieval.DefaultLimit
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	return &Assistant{
		completer: completer,
		reasoner:  reasoner,
		memory:    mem,
		searcher:  searcher,
		runtime:   runtime,
		metrics:   observability.Metrics(),
		logger:    logger,
		cfg:       cfg,
	}
}

// ChatInput identifies one chat exchange. The session identity triple is
// (SessionName, Email, Topic).
type ChatInput struct {
	Prompt      string
	Topic       string
	SessionName string
	Email       string
	Mode        agent.Mode
}

// ChatResult is the terminal outcome of an exchange, for both blocking
// and streaming calls.
type ChatResult struct {
	Content     string
	ToolUsages  []tooltrack.Invocation
	TokenInput  int
	TokenOutput int
	Elapsed     time.Duration
}

// InitSession resolves or creates the conversation for the identity.
func (a *Assistant) InitSession(ctx context.Context, sessionName, email, expertor string) (*memory.Conversation, error) {
	return a.memory.InitSession(ctx, sessionName, email, expertor)
}

// DeleteSession removes a conversation and its history.
func (a *Assistant) DeleteSession(ctx context.Context, sessionName, email, expertor string) (bool, error) {
	return a.memory.DeleteSession(ctx, sessionName, email, expertor)
}

// ClearSession discards a conversation's turns but keeps the session.
func (a *Assistant) ClearSession(ctx context.Context, sessionName, email, expertor string) error {
	conv, err := a.memory.InitSession(ctx, sessionName, email, expertor)
	if err != nil {
		return err
	}
	return conv.Clear(ctx)
}

// History returns the recent turns of a conversation in chronological
// order.
func (a *Assistant) History(ctx context.Context, sessionName, email, expertor string) ([]memory.Turn, error) {
	conv, err := a.memory.InitSession(ctx, sessionName, email, expertor)
	if err != nil {
		return nil, err
	}
	return conv.History(ctx), nil
}

// =============================================================================
// Pipeline steps
// =============================================================================

// ground embeds the prompt and retrieves supporting documents. Failures
// degrade to an empty context block; a chat must not die because the
// index is away.
func (a *Assistant) ground(ctx context.Context, span trace.Span, prompt string) string {
	span.AddEvent(phaseEmbedding)
	if a.searcher == nil {
		return ""
	}
	vector, err := a.completer.Embed(ctx, prompt)
	if err != nil {
		a.logger.Warn("query embedding failed, continuing without grounding", "error", err)
		return ""
	}
	hits, err := a.searcher.Search(ctx, vector, a.cfg.SearchLimit, "")
	if err != nil {
		a.logger.Warn("document retrieval failed, continuing without grounding", "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}
	return agent.FormatHits(hits)
}

// reason runs the agent pass. Errors become a readable placeholder that
// synthesis can still work from.
func (a *Assistant) reason(ctx context.Context, span trace.Span, in ChatInput, contextBlock string, history []memory.Turn, tracker *tooltrack.Tracker) string {
	span.AddEvent(phaseReasoning)
	out, err := a.reasoner.Invoke(ctx, in.Prompt, contextBlock, history, in.Mode, tracker)
	if err != nil {
		a.logger.Error("reasoning pass failed", "session", in.SessionName, "error", err)
		a.metrics.ErrorsTotal.WithLabelValues("chat", "reasoning").Inc()
		return fmt.Sprintf("The analysis step could not complete (%v). Answer from general knowledge and say what is uncertain.", err)
	}
	return out
}

// synthesisMessages builds the final answer prompt from the question and
// the reasoning output.
func synthesisMessages(in ChatInput, reasoning string, history []memory.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("You are the internal employee assistant for the %s domain. "+
			"Answer clearly and completely, in the language of the question.", in.Topic),
	})
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{
		Role: llm.RoleUser,
		Content: fmt.Sprintf("Based on the question and the analysis below, write a detailed, "+
			"well-structured answer. Answer directly; do not mention the analysis.\n\n"+
			"Question: %s\n\nAnalysis: %s", in.Prompt, reasoning),
	})
	return msgs
}

func (a *Assistant) persist(ctx context.Context, span trace.Span, conv *memory.Conversation, in ChatInput, answer string) {
	span.AddEvent(phasePersisting)
	conv.Append(ctx, llm.RoleUser, in.Prompt)
	conv.Append(ctx, llm.RoleAssistant, answer)
}

func (a *Assistant) observeTools(usages []tooltrack.Invocation) {
	for _, u := range usages {
		a.metrics.ToolInvocationsTotal.WithLabelValues(u.Tool).Inc()
	}
}

// =============================================================================
// Blocking chat
// =============================================================================

// Chat runs the pipeline and blocks for the complete answer. Exactly one
// assistant turn is appended per call; reasoning and synthesis failures
// degrade the content, never the exchange.
func (a *Assistant) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	start := time.Now()
	if err := a.runtime.AcquireChat(ctx); err != nil {
		return nil, err
	}
	defer a.runtime.ReleaseChat()

	ctx, span := tracer.Start(ctx, "Assistant.Chat",
		trace.WithAttributes(
			attribute.String("chat.topic", in.Topic),
			attribute.String("chat.mode", string(in.Mode)),
		))
	defer span.End()

	conv, err := a.memory.InitSession(ctx, in.SessionName, in.Email, in.Topic)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	history := conv.History(ctx)
	tracker := tooltrack.New()

	contextBlock := a.ground(ctx, span, in.Prompt)
	reasoning := a.reason(ctx, span, in, contextBlock, history, tracker)

	span.AddEvent(phaseSynthesizing)
	answer := apologyAnswer
	completion, err := a.completer.Chat(ctx, synthesisMessages(in, reasoning, history), llm.GenerationParams{
		Temperature: &a.cfg.Temperature,
	})
	if err != nil {
		a.logger.Error("synthesis failed", "session", in.SessionName, "error", err)
		a.metrics.ErrorsTotal.WithLabelValues("chat", "synthesis").Inc()
	} else {
		answer = completion.Content
	}

	a.persist(ctx, span, conv, in, answer)
	span.AddEvent(phaseDone)

	usages := tracker.Drain()
	a.observeTools(usages)
	result := &ChatResult{
		Content:     answer,
		ToolUsages:  usages,
		TokenInput:  llm.EstimateTokens(in.Prompt),
		TokenOutput: llm.EstimateTokens(answer),
		Elapsed:     time.Since(start),
	}
	a.metrics.ObserveRequest("chat", "ok", result.Elapsed)
	a.metrics.ObserveTokens(result.TokenInput, result.TokenOutput)
	return result, nil
}
