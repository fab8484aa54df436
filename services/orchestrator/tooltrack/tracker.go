// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tooltrack records which tools a reasoning pass invoked, so the
// final response can report them to the caller. Each request carries its
// own Tracker; trackers are never shared across requests, which keeps
// concurrent chats from seeing each other's tool activity.
package tooltrack

import (
	"sync"
	"time"
)

// Invocation is one recorded tool call.
type Invocation struct {
	Tool           string  `json:"tool_name"`
	Input          string  `json:"input_value"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// Tracker accumulates invocations for a single request.
//
// # Thread Safety
//
// Safe for concurrent use; a reasoning pass may run tools in parallel.
type Tracker struct {
	mu    sync.Mutex
	items []Invocation
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Record appends one invocation.
func (t *Tracker) Record(tool, input string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, Invocation{
		Tool:           tool,
		Input:          input,
		LatencySeconds: latency.Seconds(),
	})
}

// Drain returns all recorded invocations in order and resets the tracker.
func (t *Tracker) Drain() []Invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.items
	t.items = nil
	return out
}

// Clear discards recorded invocations.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
}

// Len reports the number of recorded invocations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
