// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools"

	"github.com/atlasworks/deskmind/services/llm"
	"github.com/atlasworks/deskmind/services/orchestrator/retrieval"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

// =============================================================================
// Tracking wrapper
// =============================================================================

// trackedTool wraps a tool so every invocation is recorded on the
// request's tracker. Tool failures never abort the reasoning pass; the
// error is substituted with a readable result string so the model can
// route around it.
type trackedTool struct {
	inner   tools.Tool
	tracker *tooltrack.Tracker
	logger  *slog.Logger
}

var _ tools.Tool = (*trackedTool)(nil)

func (t *trackedTool) Name() string        { return t.inner.Name() }
func (t *trackedTool) Description() string { return t.inner.Description() }

func (t *trackedTool) Call(ctx context.Context, input string) (string, error) {
	start := time.Now()
	out, err := t.inner.Call(ctx, input)
	elapsed := time.Since(start)
	t.tracker.Record(t.Name(), input, elapsed)

	if err != nil {
		t.logger.Warn("tool invocation failed",
			"tool", t.Name(), "input", input, "error", err)
		return fmt.Sprintf("tool %q failed: %v", t.Name(), err), nil
	}
	return out, nil
}

// withTracking wraps each tool for one request.
func withTracking(ts []tools.Tool, tracker *tooltrack.Tracker, logger *slog.Logger) []tools.Tool {
	out := make([]tools.Tool, 0, len(ts))
	for _, tool := range ts {
		out = append(out, &trackedTool{inner: tool, tracker: tracker, logger: logger})
	}
	return out
}

// =============================================================================
// Document search
// =============================================================================

// DocumentSearchTool embeds the query through the provider chain and
// searches the document index.
type DocumentSearchTool struct {
	Chain    *llm.Chain
	Searcher retrieval.Searcher
	Limit    int
}

var _ tools.Tool = (*DocumentSearchTool)(nil)

func (t *DocumentSearchTool) Name() string { return "search_documents" }

func (t *DocumentSearchTool) Description() string {
	return "Search internal company documents for policies, procedures and guides. " +
		"Input is a natural language query; output is the most relevant document excerpts."
}

func (t *DocumentSearchTool) Call(ctx context.Context, input string) (string, error) {
	vector, err := t.Chain.Embed(ctx, input)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	hits, err := t.Searcher.Search(ctx, vector, t.Limit, "")
	if err != nil {
		return "", fmt.Errorf("search documents: %w", err)
	}
	if len(hits) == 0 {
		return "No relevant documents found.", nil
	}
	return FormatHits(hits), nil
}

// FormatHits renders hits the way the reasoning model consumes them.
func FormatHits(hits []retrieval.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "Result #%d (certainty %.2f, source %s):\n%s\n\n", i+1, h.Certainty, h.Source, h.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// HTTP-backed tools
// =============================================================================

// toolHTTPGet fetches one endpoint of the internal tools service.
func toolHTTPGet(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tools request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tools service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tools service returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read tools response: %w", err)
	}
	return body, nil
}

// DepartmentsTool lists the departments known to the tools service.
type DepartmentsTool struct {
	BaseURL string
	Client  *http.Client
}

var _ tools.Tool = (*DepartmentsTool)(nil)

func (t *DepartmentsTool) Name() string { return "list_departments" }

func (t *DepartmentsTool) Description() string {
	return "List all departments in the company. Takes no meaningful input."
}

func (t *DepartmentsTool) Call(ctx context.Context, _ string) (string, error) {
	body, err := toolHTTPGet(ctx, t.Client, t.BaseURL+"/tools/list_departments")
	if err != nil {
		return "", err
	}
	var parsed struct {
		Departments []string `json:"departments"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode departments: %w", err)
	}
	if len(parsed.Departments) == 0 {
		return "No departments are registered.", nil
	}
	return "Departments: " + strings.Join(parsed.Departments, ", "), nil
}

// CurrentTimeTool reports the current date and time from the tools
// service, keeping all clock authority in one place.
type CurrentTimeTool struct {
	BaseURL string
	Client  *http.Client
}

var _ tools.Tool = (*CurrentTimeTool)(nil)

func (t *CurrentTimeTool) Name() string { return "get_current_datetime" }

func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time. Takes no meaningful input."
}

func (t *CurrentTimeTool) Call(ctx context.Context, _ string) (string, error) {
	body, err := toolHTTPGet(ctx, t.Client, t.BaseURL+"/tools/get_current_datetime")
	if err != nil {
		return "", err
	}
	var parsed struct {
		Datetime string `json:"datetime"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Datetime != "" {
		return parsed.Datetime, nil
	}
	// The service may answer with a bare JSON string.
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s, nil
	}
	return string(body), nil
}

// CompanyInfoTool answers questions about the company itself.
type CompanyInfoTool struct {
	BaseURL string
	Client  *http.Client
}

var _ tools.Tool = (*CompanyInfoTool)(nil)

func (t *CompanyInfoTool) Name() string { return "company_info" }

func (t *CompanyInfoTool) Description() string {
	return "Look up general company information such as offices, contacts and org structure. " +
		"Input is the topic to look up."
}

func (t *CompanyInfoTool) Call(ctx context.Context, input string) (string, error) {
	endpoint := t.BaseURL + "/tools/company_info?topic=" + url.QueryEscape(strings.TrimSpace(input))
	body, err := toolHTTPGet(ctx, t.Client, endpoint)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Info string `json:"info"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Info != "" {
		return parsed.Info, nil
	}
	return string(body), nil
}
