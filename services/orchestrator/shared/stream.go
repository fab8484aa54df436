// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStreamClosed is returned by Next after Close has been called.
var ErrStreamClosed = errors.New("stream closed by consumer")

// Stream bridges an asynchronous producer goroutine to synchronous
// consumers. The producer runs once, emitting items through a channel;
// consumers pull them with Next from any goroutine, including plain
// blocking call sites like CLI commands and tests.
//
// # Thread Safety
//
// Next and Close are safe to call concurrently. The emit callback handed
// to the producer must only be used from the producer goroutine.
type Stream[T any] struct {
	ch     chan T
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// NewStream starts produce in its own goroutine. produce emits items via
// the callback and returns when exhausted; its return value becomes the
// stream's terminal error. The emit callback fails once the consumer has
// closed the stream, letting producers unwind without leaking.
func NewStream[T any](ctx context.Context, produce func(ctx context.Context, emit func(T) error) error) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		ch:     make(chan T),
		cancel: cancel,
	}

	emit := func(item T) error {
		select {
		case s.ch <- item:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("emit on finished stream: %w", ctx.Err())
		}
	}

	go func() {
		err := produce(ctx, emit)
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
		close(s.ch)
	}()

	return s
}

// Next blocks for the next item. ok is false once the stream is
// exhausted; the terminal error, if any, accompanies the final ok=false.
func (s *Stream[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	var zero T
	select {
	case v, open := <-s.ch:
		if !open {
			return zero, false, s.Err()
		}
		return v, true, nil
	case <-ctx.Done():
		return zero, false, fmt.Errorf("stream wait: %w", ctx.Err())
	}
}

// Err returns the producer's terminal error. Only meaningful after Next
// has reported exhaustion.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the producer and discards remaining items. Safe to call
// more than once.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.err == nil {
		s.err = ErrStreamClosed
	}
	s.mu.Unlock()

	s.cancel()
	// Drain so the producer's pending emit unblocks and it can observe
	// cancellation.
	go func() {
		for range s.ch {
		}
	}()
}

// Collect drains the stream into a slice. Intended for synchronous call
// sites that want the whole result at once.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		item, ok, err := s.Next(ctx)
		if !ok {
			return out, err
		}
		out = append(out, item)
	}
}
