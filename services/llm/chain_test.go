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
	"strings"
	"testing"
)

// fakeProvider scripts one provider's behavior for chain tests.
type fakeProvider struct {
	name       string
	chatErr    error
	content    string
	fragments  []string
	streamErr  error // returned after emitting fragments
	embedVec   []float32
	embedErr   error
	chatCalls  int
	embedCalls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(_ context.Context, _ []Message, _ GenerationParams) (*Completion, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &Completion{Content: f.content, Provider: f.name}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, _ []Message, _ GenerationParams, fn StreamFunc) (*Completion, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	var full strings.Builder
	for _, frag := range f.fragments {
		if err := fn(ctx, frag); err != nil {
			return nil, err
		}
		full.WriteString(frag)
	}
	if f.streamErr != nil {
		if len(f.fragments) > 0 {
			return nil, ErrStreamInterrupted
		}
		return nil, f.streamErr
	}
	return &Completion{Content: full.String(), Provider: f.name}, nil
}

func (f *fakeProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedVec, nil
}

func TestChainChatFallsThroughInOrder(t *testing.T) {
	primary := &fakeProvider{name: "primary", chatErr: errors.New("quota exceeded")}
	secondary := &fakeProvider{name: "secondary", content: "from secondary"}
	tertiary := &fakeProvider{name: "tertiary", content: "from tertiary"}
	chain := NewChain(nil, primary, secondary, tertiary)

	completion, err := chain.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if completion.Provider != "secondary" || completion.Content != "from secondary" {
		t.Errorf("got %q from %q, want answer from secondary", completion.Content, completion.Provider)
	}
	if tertiary.chatCalls != 0 {
		t.Error("tertiary was called even though secondary answered")
	}
}

func TestChainChatAllFailedReturnsPlaceholder(t *testing.T) {
	down := errors.New("connection refused")
	chain := NewChain(nil,
		&fakeProvider{name: "a", chatErr: down},
		&fakeProvider{name: "b", chatErr: down},
	)

	completion, err := chain.Chat(context.Background(), []Message{{Role: RoleUser, Content: "what is the leave policy?"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !strings.HasPrefix(completion.Content, FallbackNotice) {
		t.Errorf("placeholder missing fallback notice: %q", completion.Content)
	}
	if !strings.Contains(completion.Content, "leave policy") {
		t.Errorf("placeholder does not echo the question: %q", completion.Content)
	}
}

func TestChainChatEmptyChainStillAnswers(t *testing.T) {
	chain := NewChain(nil)
	completion, err := chain.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if !strings.HasPrefix(completion.Content, FallbackNotice) {
		t.Errorf("expected placeholder, got %q", completion.Content)
	}
}

func TestChainStreamSkipsEarlyFailure(t *testing.T) {
	chain := NewChain(nil,
		&fakeProvider{name: "a", streamErr: errors.New("dial timeout")},
		&fakeProvider{name: "b", fragments: []string{"hel", "lo"}},
	)

	var got []string
	completion, err := chain.ChatStream(context.Background(), nil, GenerationParams{}, func(_ context.Context, frag string) error {
		got = append(got, frag)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if completion.Content != "hello" {
		t.Errorf("assembled content = %q, want hello", completion.Content)
	}
	if len(got) != 2 {
		t.Errorf("got %d fragments, want 2", len(got))
	}
}

func TestChainStreamMidFailureSurfaces(t *testing.T) {
	chain := NewChain(nil,
		&fakeProvider{name: "a", fragments: []string{"part"}, streamErr: errors.New("reset by peer")},
		&fakeProvider{name: "b", fragments: []string{"never"}},
	)

	var got []string
	_, err := chain.ChatStream(context.Background(), nil, GenerationParams{}, func(_ context.Context, frag string) error {
		got = append(got, frag)
		return nil
	})
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("err = %v, want ErrStreamInterrupted", err)
	}
	// Partial output already left the chain; the next provider must not run.
	if len(got) != 1 || got[0] != "part" {
		t.Errorf("fragments = %v, want exactly the partial output", got)
	}
}

func TestChainEmbedFallsBackToZeroVector(t *testing.T) {
	down := errors.New("embedding service down")
	chain := NewChain(nil,
		&fakeProvider{name: "a", embedErr: down},
		&fakeProvider{name: "b", embedErr: down},
	)

	vec, err := chain.Embed(context.Background(), "question")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != EmbeddingDimensions {
		t.Fatalf("vector length = %d, want %d", len(vec), EmbeddingDimensions)
	}
	if !IsZeroVector(vec) {
		t.Error("expected all-zero vector after total embedding failure")
	}
}

func TestChainEmbedUsesFirstHealthyProvider(t *testing.T) {
	want := FitDimensions([]float32{0.1, 0.2}, EmbeddingDimensions)
	chain := NewChain(nil,
		&fakeProvider{name: "a", embedErr: errors.New("down")},
		&fakeProvider{name: "b", embedVec: want},
	)

	vec, err := chain.Embed(context.Background(), "question")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if IsZeroVector(vec) {
		t.Fatal("got zero vector, want provider vector")
	}
	if vec[0] != 0.1 || vec[1] != 0.2 {
		t.Errorf("vector head = %v, want [0.1 0.2]", vec[:2])
	}
}

func TestFitDimensions(t *testing.T) {
	cases := []struct {
		name string
		in   int
		want int
	}{
		{"pads short", 1536, EmbeddingDimensions},
		{"keeps exact", EmbeddingDimensions, EmbeddingDimensions},
		{"truncates long", 4096, EmbeddingDimensions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]float32, tc.in)
			for i := range in {
				in[i] = 1
			}
			out := FitDimensions(in, EmbeddingDimensions)
			if len(out) != tc.want {
				t.Fatalf("len = %d, want %d", len(out), tc.want)
			}
			if tc.in < EmbeddingDimensions && out[tc.in] != 0 {
				t.Error("padding region is not zero")
			}
		})
	}
}
