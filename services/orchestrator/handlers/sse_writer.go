// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/atlasworks/deskmind/services/orchestrator/datatypes"
	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

// SSE event names on the chat stream.
const (
	eventFragment = "fragment"
	eventError    = "error"
	eventDone     = "done"
)

// SSEWriter emits the chat stream wire events.
type SSEWriter interface {
	// WriteFragment sends one content fragment.
	WriteFragment(ev datatypes.StreamEvent) error

	// WriteError sends one error fragment. The stream stays open; the
	// terminal event is always done.
	WriteError(ev datatypes.StreamEvent) error

	// WriteDone sends the terminal event.
	WriteDone(done datatypes.StreamDone) error
}

// sseWriter writes Server-Sent Events over a gin response, flushing after
// every event so fragments reach the client immediately.
type sseWriter struct {
	mu      sync.Mutex
	w       gin.ResponseWriter
	flusher http.Flusher
}

var _ SSEWriter = (*sseWriter)(nil)

// SetSSEHeaders prepares the response for an event stream. Call before
// the first write.
func SetSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
}

// NewSSEWriter wraps the gin response. Returns an error when the
// underlying writer cannot flush, which would silently batch the stream.
func NewSSEWriter(c *gin.Context) (SSEWriter, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseWriter{w: c.Writer, flusher: flusher}, nil
}

func (s *sseWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) WriteFragment(ev datatypes.StreamEvent) error {
	return s.writeEvent(eventFragment, ev)
}

func (s *sseWriter) WriteError(ev datatypes.StreamEvent) error {
	return s.writeEvent(eventError, ev)
}

func (s *sseWriter) WriteDone(done datatypes.StreamDone) error {
	if done.ToolUsages == nil {
		done.ToolUsages = []tooltrack.Invocation{}
	}
	return s.writeEvent(eventDone, done)
}
