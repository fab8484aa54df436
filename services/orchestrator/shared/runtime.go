// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package shared holds the process-wide concurrency plumbing used by the
// orchestrator: a pooled HTTP client with uniform timeouts, a bounded
// worker pool for blocking calls, and an admission gate that caps the
// number of chat requests in flight.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultTotalTimeout bounds an entire outbound HTTP exchange.
	DefaultTotalTimeout = 300 * time.Second

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReadTimeout bounds the wait for response headers.
	DefaultReadTimeout = 120 * time.Second

	// DefaultMaxConcurrentChats caps chat requests admitted at once.
	// Excess requests wait at the gate rather than being rejected.
	DefaultMaxConcurrentChats = 50

	// DefaultWorkers bounds the pool used for blocking side work.
	DefaultWorkers = 16
)

// Options configure a Runtime. Zero fields use the defaults above.
type Options struct {
	TotalTimeout       time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	MaxConcurrentChats int64
	Workers            int64
	Logger             *slog.Logger
}

func (o *Options) normalize() {
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = DefaultTotalTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.MaxConcurrentChats <= 0 {
		o.MaxConcurrentChats = DefaultMaxConcurrentChats
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// =============================================================================
// Runtime
// =============================================================================

// Runtime owns the shared outbound HTTP client and the two concurrency
// gates. One Runtime serves the whole process; every component that makes
// network calls borrows its client so connection pooling and timeouts are
// governed in a single place.
//
// # Thread Safety
//
// All methods are safe for concurrent use. HTTPClient transparently
// rebuilds the client after Shutdown, so a late caller never observes a
// closed transport.
type Runtime struct {
	opts Options

	mu     sync.Mutex
	client *http.Client

	chatGate *semaphore.Weighted
	workGate *semaphore.Weighted
	wg       sync.WaitGroup
}

// New builds a Runtime from opts.
func New(opts Options) *Runtime {
	opts.normalize()
	return &Runtime{
		opts:     opts,
		chatGate: semaphore.NewWeighted(opts.MaxConcurrentChats),
		workGate: semaphore.NewWeighted(opts.Workers),
	}
}

var (
	defaultOnce    sync.Once
	defaultRuntime *Runtime
)

// Default returns the process-wide Runtime, constructing it with default
// options on first use.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRuntime = New(Options{})
	})
	return defaultRuntime
}

func (r *Runtime) newClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   r.opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: r.opts.ReadTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   r.opts.ConnectTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   r.opts.TotalTimeout,
	}
}

// HTTPClient returns the shared pooled client, creating it on first use
// or after Shutdown.
func (r *Runtime) HTTPClient() *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		r.client = r.newClient()
	}
	return r.client
}

// AcquireChat blocks until a chat slot is free or ctx is done. Callers
// must pair it with ReleaseChat.
func (r *Runtime) AcquireChat(ctx context.Context) error {
	if err := r.chatGate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("chat admission: %w", err)
	}
	return nil
}

// ReleaseChat frees a slot taken by AcquireChat.
func (r *Runtime) ReleaseChat() {
	r.chatGate.Release(1)
}

// Submit runs fn on the bounded worker pool and waits for its result.
// It blocks while the pool is saturated; ctx aborts both the wait and fn.
func (r *Runtime) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := r.workGate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker admission: %w", err)
	}
	defer r.workGate.Release(1)
	return fn(ctx)
}

// Go runs fn asynchronously on the bounded pool. The error is logged, not
// returned; use Submit when the caller needs the result.
func (r *Runtime) Go(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Submit(ctx, fn); err != nil {
			r.opts.Logger.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// Shutdown waits for background tasks and releases pooled connections.
// The Runtime remains usable; the client is rebuilt on next use.
func (r *Runtime) Shutdown() {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.CloseIdleConnections()
		r.client = nil
	}
}
