// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/shared"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

// ChatStream is a live streaming exchange. Fragments arrive through Next;
// after exhaustion Result carries the terminal outcome, including tool
// usage and the fully assembled answer.
type ChatStream struct {
	stream *shared.Stream[string]

	mu     sync.Mutex
	result *ChatResult
}

// Next blocks for the next answer fragment. ok is false once the stream
// has finished.
func (s *ChatStream) Next(ctx context.Context) (fragment string, ok bool, err error) {
	return s.stream.Next(ctx)
}

// Close abandons the stream. The pipeline keeps running off the consumer
// context, completes the answer with a blocking completion, and persists
// the exchange.
func (s *ChatStream) Close() {
	s.stream.Close()
}

// Err returns the pipeline's terminal error, if any. Only meaningful
// after Next has reported exhaustion. Mid-stream provider failures are
// recovered internally and do not surface here.
func (s *ChatStream) Err() error {
	err := s.stream.Err()
	if err == nil || errors.Is(err, shared.ErrStreamClosed) {
		return nil
	}
	return err
}

// Result returns the terminal outcome, or nil while the stream is live.
func (s *ChatStream) Result() *ChatResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *ChatStream) setResult(r *ChatResult) {
	s.mu.Lock()
	s.result = r
	s.mu.Unlock()
}

// ChatStream runs the same pipeline as Chat but streams the synthesis
// phase. Grounding and reasoning stay blocking; only the final answer is
// streamed. If a provider dies mid-stream the pipeline falls back to a
// blocking completion and delivers it as one fragment, so consumers
// always end with a complete answer. A consumer that disconnects or
// closes the handle only stops delivery: the pipeline runs to completion
// off the consumer context. Exactly one assistant turn is persisted
// either way.
func (a *Assistant) ChatStream(ctx context.Context, in ChatInput) *ChatStream {
	cs := &ChatStream{}
	start := time.Now()

	cs.stream = shared.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		// ctx dies with the consumer; work does not. Fragment delivery
		// follows ctx, everything the exchange record depends on follows
		// work.
		work := context.WithoutCancel(ctx)

		if err := a.runtime.AcquireChat(work); err != nil {
			return err
		}
		defer a.runtime.ReleaseChat()

		work, span := tracer.Start(work, "Assistant.ChatStream",
			trace.WithAttributes(
				attribute.String("chat.topic", in.Topic),
				attribute.String("chat.mode", string(in.Mode)),
			))
		defer span.End()

		a.metrics.ActiveStreams.Inc()
		defer a.metrics.ActiveStreams.Dec()

		conv, err := a.memory.InitSession(work, in.SessionName, in.Email, in.Topic)
		if err != nil {
			return err
		}
		history := conv.History(work)
		tracker := tooltrack.New()

		contextBlock := a.ground(work, span, in.Prompt)
		reasoning := a.reason(work, span, in, contextBlock, history, tracker)

		span.AddEvent(phaseSynthesizing)
		msgs := synthesisMessages(in, reasoning, history)
		params := llm.GenerationParams{Temperature: &a.cfg.Temperature}

		first := true
		completion, streamErr := a.completer.ChatStream(ctx, msgs, params, func(ctx context.Context, fragment string) error {
			if first {
				a.metrics.TimeToFirstFragment.Observe(time.Since(start).Seconds())
				first = false
			}
			return emit(fragment)
		})

		answer := ""
		if streamErr == nil {
			answer = completion.Content
		} else {
			gone := ctx.Err() != nil
			if gone {
				// Consumer disconnected mid-synthesis. The partial text
				// never becomes the record; finish the answer off the
				// consumer context so the exchange persists complete.
				a.logger.Info("stream consumer gone, completing exchange", "session", in.SessionName)
			} else {
				// Mid-stream provider failure: recover with a blocking
				// completion and hand it over as a single fragment.
				a.logger.Warn("stream failed mid-response, falling back to blocking completion",
					"session", in.SessionName, "error", streamErr)
				a.metrics.ErrorsTotal.WithLabelValues("chat_stream", "mid_stream").Inc()
			}
			fallback, err := a.completer.Chat(work, msgs, params)
			if err != nil {
				a.logger.Error("blocking fallback failed", "session", in.SessionName, "error", err)
				answer = apologyAnswer
			} else {
				answer = fallback.Content
			}
			if !gone {
				if err := emit(answer); err != nil {
					a.logger.Info("consumer gone during fallback delivery", "session", in.SessionName)
				}
			}
		}

		if answer != "" {
			a.persist(work, span, conv, in, answer)
		}
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
		cs.setResult(result)
		a.metrics.ObserveRequest("chat_stream", "ok", result.Elapsed)
		a.metrics.ObserveTokens(result.TokenInput, result.TokenOutput)
		return nil
	})

	return cs
}
