// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"
)

func validChatRequest() ChatRequest {
	return ChatRequest{
		Prompt:      "How do I submit an expense report?",
		UserEmail:   "an.nguyen@example.com",
		Topic:       "finance",
		SessionName: "expenses",
		Mode:        "normal",
	}
}

func TestChatRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ChatRequest)
		wantErr bool
	}{
		{"valid", func(*ChatRequest) {}, false},
		{"empty mode allowed", func(r *ChatRequest) { r.Mode = "" }, false},
		{"think mode allowed", func(r *ChatRequest) { r.Mode = "think" }, false},
		{"missing prompt", func(r *ChatRequest) { r.Prompt = "" }, true},
		{"bad email", func(r *ChatRequest) { r.UserEmail = "not-an-email" }, true},
		{"missing topic", func(r *ChatRequest) { r.Topic = "" }, true},
		{"missing session", func(r *ChatRequest) { r.SessionName = "" }, true},
		{"unknown mode", func(r *ChatRequest) { r.Mode = "fast" }, true},
		{"oversized prompt", func(r *ChatRequest) { r.Prompt = strings.Repeat("a", MaxPromptBytes+1) }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validChatRequest()
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestSessionRequestValidate(t *testing.T) {
	req := SessionRequest{SessionName: "benefits", Email: "an@example.com", Expertor: "hr"}
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	req.Email = "broken"
	if err := req.Validate(); err == nil {
		t.Error("invalid email accepted")
	}
}

func TestStreamEventWireShape(t *testing.T) {
	b, err := json.Marshal(StreamEvent{
		Content:     "partial answer",
		Topic:       "hr",
		SessionName: "benefits",
		Mode:        "normal",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"content"`, `"topic"`, `"session_name"`, `"mode"`} {
		if !strings.Contains(s, want) {
			t.Errorf("fragment JSON %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("content fragment carries an error field: %s", s)
	}
}

func TestStreamDoneWireShape(t *testing.T) {
	b, err := json.Marshal(StreamDone{TimeResponse: 1.25})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"tool_usages"`) || !strings.Contains(s, `"time_response"`) {
		t.Errorf("done JSON missing required fields: %s", s)
	}
}
