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
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default returned two distinct runtimes")
	}
}

func TestHTTPClientReusedAndRebuiltAfterShutdown(t *testing.T) {
	rt := New(Options{})
	first := rt.HTTPClient()
	if first != rt.HTTPClient() {
		t.Error("HTTPClient returned a new client on second call")
	}
	rt.Shutdown()
	rebuilt := rt.HTTPClient()
	if rebuilt == nil {
		t.Fatal("HTTPClient returned nil after Shutdown")
	}
	if rebuilt == first {
		t.Error("client was not rebuilt after Shutdown")
	}
}

func TestHTTPClientTimeouts(t *testing.T) {
	rt := New(Options{TotalTimeout: 5 * time.Second})
	if got := rt.HTTPClient().Timeout; got != 5*time.Second {
		t.Errorf("client timeout = %v, want 5s", got)
	}
	if got := New(Options{}).HTTPClient().Timeout; got != DefaultTotalTimeout {
		t.Errorf("default client timeout = %v, want %v", got, DefaultTotalTimeout)
	}
}

func TestAcquireChatBlocksAtCapacity(t *testing.T) {
	rt := New(Options{MaxConcurrentChats: 1})
	if err := rt.AcquireChat(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(entered)
		done <- rt.AcquireChat(context.Background())
	}()

	<-entered
	select {
	case err := <-done:
		t.Fatalf("second acquire did not block (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	rt.ReleaseChat()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second acquire never proceeded after release")
	}
	rt.ReleaseChat()
}

func TestAcquireChatHonorsContext(t *testing.T) {
	rt := New(Options{MaxConcurrentChats: 1})
	if err := rt.AcquireChat(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer rt.ReleaseChat()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rt.AcquireChat(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	rt := New(Options{Workers: 2})
	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rt.Submit(context.Background(), func(context.Context) error {
				n := atomic.AddInt64(&active, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	rt := New(Options{})
	want := errors.New("boom")
	if err := rt.Submit(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestGoWaitsOnShutdown(t *testing.T) {
	rt := New(Options{})
	var ran atomic.Bool
	rt.Go(context.Background(), "test", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
		return nil
	})
	rt.Shutdown()
	if !ran.Load() {
		t.Error("Shutdown returned before background task finished")
	}
}
