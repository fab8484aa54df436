// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval resolves a query vector to the most relevant internal
// documents. The production backend is Weaviate; the Searcher interface
// keeps the orchestrator and tools testable without one.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultLimit is the number of documents returned when the caller does
// not specify one.
const DefaultLimit = 4

// Hit is one retrieved document chunk.
type Hit struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Department string  `json:"department"`
	Certainty  float64 `json:"certainty"`
}

// Searcher is implemented by document retrieval backends.
type Searcher interface {
	// Search returns up to limit hits nearest to vector, optionally
	// restricted to one department.
	Search(ctx context.Context, vector []float32, limit int, department string) ([]Hit, error)
}

// =============================================================================
// Weaviate backend
// =============================================================================

// WeaviateSearcher queries a Weaviate class with nearVector search.
type WeaviateSearcher struct {
	client    *weaviate.Client
	className string
	logger    *slog.Logger
}

var _ Searcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher connects to the Weaviate instance at rawURL. The
// URL must carry a scheme and host.
func NewWeaviateSearcher(rawURL, className string, logger *slog.Logger) (*WeaviateSearcher, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q: %w", rawURL, err)
	}
	if className == "" {
		className = "Document"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateSearcher{client: client, className: className, logger: logger}, nil
}

// documentRecord mirrors one object of the document class in a GraphQL
// Get response. Field names must match the class schema.
type documentRecord struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Department string `json:"department"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// documentQueryResponse keys the Get payload by class name, so the same
// parser serves any configured document class.
type documentQueryResponse struct {
	Get map[string][]documentRecord `json:"Get"`
}

func (s *WeaviateSearcher) Search(ctx context.Context, vector []float32, limit int, department string) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "department"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if department != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"department"}).
			WithOperator(filters.Equal).
			WithValueString(department))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search: %s", result.Errors[0].Message)
	}

	hits, err := decodeHits(result.Data, s.className)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("retrieved documents", "count", len(hits), "department", department)
	return hits, nil
}

// decodeHits converts the dynamic GraphQL payload into typed hits via a
// JSON round trip.
func decodeHits(data map[string]models.JSONObject, className string) ([]Hit, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal search response: %w", err)
	}
	var parsed documentQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	records := parsed.Get[className]
	hits := make([]Hit, 0, len(records))
	for _, d := range records {
		hits = append(hits, Hit{
			Content:    d.Content,
			Source:     d.Source,
			Department: d.Department,
			Certainty:  d.Additional.Certainty,
		})
	}
	return hits, nil
}
