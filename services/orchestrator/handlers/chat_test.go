// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/datatypes"
	"github.com/atlasworks/deskmind/services/orchestrator/memory"
	"github.com/atlasworks/deskmind/services/orchestrator/services"
	"github.com/atlasworks/deskmind/services/orchestrator/shared"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubCompleter answers every synthesis call with a fixed string, in
// fragments when streaming.
type stubCompleter struct {
	answer    string
	fragments []string
}

func (s *stubCompleter) Chat(_ context.Context, _ []llm.Message, _ llm.GenerationParams) (*llm.Completion, error) {
	return &llm.Completion{Content: s.answer}, nil
}

func (s *stubCompleter) ChatStream(ctx context.Context, _ []llm.Message, _ llm.GenerationParams, fn llm.StreamFunc) (*llm.Completion, error) {
	var full strings.Builder
	for _, frag := range s.fragments {
		if err := fn(ctx, frag); err != nil {
			return nil, err
		}
		full.WriteString(frag)
	}
	return &llm.Completion{Content: full.String()}, nil
}

func (s *stubCompleter) Embed(_ context.Context, _ string) ([]float32, error) {
	return llm.ZeroVector(), nil
}

type stubReasoner struct{}

func (stubReasoner) Invoke(_ context.Context, _ string, _ string, _ []memory.Turn, _ agent.Mode, tracker *tooltrack.Tracker) (string, error) {
	tracker.Record("search_documents", "query", 0)
	return "analysis", nil
}

func testAssistant(completer *stubCompleter) *services.Assistant {
	mem := memory.New(nil, nil, 16, nil)
	rt := shared.New(shared.Options{MaxConcurrentChats: 4})
	return services.NewAssistant(completer, stubReasoner{}, mem, nil, rt, nil, services.Config{})
}

func chatBody() string {
	b, _ := json.Marshal(datatypes.ChatRequest{
		Prompt:      "How do I reset my VPN password?",
		UserEmail:   "an@example.com",
		Topic:       "it",
		SessionName: "vpn-help",
		Mode:        "normal",
	})
	return string(b)
}

func performJSON(t *testing.T, handler gin.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Handle(method, "/test", handler)
	req := httptest.NewRequest(method, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	svc := testAssistant(&stubCompleter{answer: "Use the self-service portal."})
	rec := performJSON(t, HandleChat(svc), http.MethodPost, chatBody())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp datatypes.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if resp.Output != "Use the self-service portal." {
		t.Errorf("output = %q", resp.Output)
	}
	if resp.SessionName != "vpn-help" || resp.Topic != "it" {
		t.Errorf("echo fields wrong: %+v", resp)
	}
	if len(resp.ToolUsages) != 1 || resp.ToolUsages[0].Tool != "search_documents" {
		t.Errorf("tool usages = %+v", resp.ToolUsages)
	}
	if resp.TimeResponse <= 0 {
		t.Errorf("time_response = %v, want > 0", resp.TimeResponse)
	}
}

func TestHandleChatRejectsInvalidBody(t *testing.T) {
	svc := testAssistant(&stubCompleter{answer: "x"})

	t.Run("malformed json", func(t *testing.T) {
		rec := performJSON(t, HandleChat(svc), http.MethodPost, "{not json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
	t.Run("missing fields", func(t *testing.T) {
		rec := performJSON(t, HandleChat(svc), http.MethodPost, `{"prompt": "hi"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleChatStreamWireContract(t *testing.T) {
	svc := testAssistant(&stubCompleter{fragments: []string{"Use the ", "portal."}})
	rec := performJSON(t, HandleChatStream(svc, nil), http.MethodPost, chatBody())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rec.Body.String()
	if got := strings.Count(body, "event: fragment"); got != 2 {
		t.Errorf("fragment events = %d, want 2\n%s", got, body)
	}
	if got := strings.Count(body, "event: done"); got != 1 {
		t.Errorf("done events = %d, want 1\n%s", got, body)
	}
	if strings.Contains(body, "event: error") {
		t.Errorf("unexpected error event:\n%s", body)
	}
	// Fragments carry the request context fields.
	if !strings.Contains(body, `"session_name":"vpn-help"`) || !strings.Contains(body, `"mode":"normal"`) {
		t.Errorf("fragment missing context fields:\n%s", body)
	}
	// The done event reports tool usage and latency.
	if !strings.Contains(body, `"tool_usages"`) || !strings.Contains(body, `"time_response"`) {
		t.Errorf("done event incomplete:\n%s", body)
	}
}

func TestHandleChatStreamRejectsInvalidBody(t *testing.T) {
	svc := testAssistant(&stubCompleter{})
	rec := performJSON(t, HandleChatStream(svc, nil), http.MethodPost, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
