// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasworks/deskmind/services/orchestrator/store"
)

// fakeStore backs both store interfaces with maps so memory logic can be
// tested without a database.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*store.Session
	messages  map[uuid.UUID][]store.Message
	failWrite bool
	failRead  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*store.Session),
		messages: make(map[uuid.UUID][]store.Message),
	}
}

func (f *fakeStore) GetOrCreate(_ context.Context, name, email, expertor string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := store.OriginalNameFor(email, expertor, name)
	if s, ok := f.sessions[key]; ok {
		return s, nil
	}
	s := &store.Session{ID: uuid.New(), SessionName: name, Email: email, Expertor: expertor, OriginalName: key}
	f.sessions[key] = s
	return s, nil
}

func (f *fakeStore) Find(_ context.Context, name, email, expertor string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[store.OriginalNameFor(email, expertor, name)]; ok {
		return s, nil
	}
	return nil, store.ErrSessionNotFound
}

func (f *fakeStore) Touch(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakeStore) DeleteCascade(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, s := range f.sessions {
		if s.ID == id {
			delete(f.sessions, key)
			delete(f.messages, id)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Append(_ context.Context, sessionID uuid.UUID, role, content string, _ map[string]any) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return uuid.Nil, errors.New("write failed")
	}
	id := uuid.New()
	f.messages[sessionID] = append(f.messages[sessionID], store.Message{ID: id, SessionID: sessionID, Role: role, Content: content})
	return id, nil
}

func (f *fakeStore) Recent(_ context.Context, sessionID uuid.UUID, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return nil, errors.New("read failed")
	}
	msgs := f.messages[sessionID]
	// Newest first, like the real repository.
	out := make([]store.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (f *fakeStore) DeleteBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.messages[sessionID]))
	delete(f.messages, sessionID)
	return n, nil
}

func TestInitSessionIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	a, err := m.InitSession(ctx, "benefits", "an@example.com", "hr")
	require.NoError(t, err)
	b, err := m.InitSession(ctx, "benefits", "an@example.com", "hr")
	require.NoError(t, err)

	idA, ok := a.SessionID()
	require.True(t, ok)
	idB, _ := b.SessionID()
	assert.Equal(t, idA, idB, "same identity must resolve to the same session")
}

func TestAppendAndHistoryChronological(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)

	conv.Append(ctx, "user", "How do I reset my VPN password?")
	conv.Append(ctx, "assistant", "Open the self-service portal and choose reset.")
	conv.Append(ctx, "user", "And if that fails?")

	hist := conv.History(ctx)
	require.Len(t, hist, 3)
	assert.Equal(t, "user", hist[0].Role)
	assert.Equal(t, "How do I reset my VPN password?", hist[0].Content)
	assert.Equal(t, "And if that fails?", hist[2].Content)
}

func TestHistoryBoundedByLimit(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 4, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		conv.Append(ctx, "user", string(rune('a'+i)))
	}

	hist := conv.History(ctx)
	require.Len(t, hist, 4)
	// The most recent turns survive.
	assert.Equal(t, "g", hist[0].Content)
	assert.Equal(t, "j", hist[3].Content)
}

func TestClearEmptiesHistory(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	conv.Append(ctx, "user", "hello")
	require.NoError(t, conv.Clear(ctx))
	assert.Empty(t, conv.History(ctx))
}

func TestDeleteSession(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	_, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)

	deleted, err := m.DeleteSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = m.DeleteSession(ctx, "never-existed", "u@example.com", "it")
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a nonexistent session reports false")
}

func TestMirrorOnlyModeWithoutStores(t *testing.T) {
	m := New(nil, nil, 0, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	if _, ok := conv.SessionID(); ok {
		t.Fatal("mirror-only conversation reports a persisted session id")
	}

	conv.Append(ctx, "user", "hi")
	conv.Append(ctx, "assistant", "hello")
	hist := conv.History(ctx)
	require.Len(t, hist, 2)
	assert.Equal(t, "assistant", hist[1].Role)
}

func TestStoreReadFailureFallsBackToMirror(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	conv.Append(ctx, "user", "question")
	conv.Append(ctx, "assistant", "answer")

	fs.failRead = true
	hist := conv.History(ctx)
	require.Len(t, hist, 2, "mirror must serve history when the store read fails")
	assert.Equal(t, "question", hist[0].Content)
}

func TestStoreWriteFailureDoesNotLoseTurn(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 0, nil)
	ctx := context.Background()

	conv, err := m.InitSession(ctx, "s", "u@example.com", "it")
	require.NoError(t, err)
	fs.failWrite = true
	conv.Append(ctx, "user", "kept in mirror")

	fs.failRead = true // force mirror path
	hist := conv.History(ctx)
	require.Len(t, hist, 1)
	assert.Equal(t, "kept in mirror", hist[0].Content)
}

func TestConcurrentSessionsDoNotInterleave(t *testing.T) {
	fs := newFakeStore()
	m := New(fs, fs, 64, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	users := []string{"a@example.com", "b@example.com", "c@example.com"}
	for _, u := range users {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			conv, err := m.InitSession(ctx, "s", email, "it")
			if err != nil {
				t.Error(err)
				return
			}
			for i := 0; i < 20; i++ {
				conv.Append(ctx, "user", email)
			}
		}(u)
	}
	wg.Wait()

	for _, u := range users {
		conv, err := m.InitSession(ctx, "s", u, "it")
		require.NoError(t, err)
		hist := conv.History(ctx)
		require.Len(t, hist, 20)
		for _, turn := range hist {
			assert.Equal(t, u, turn.Content, "foreign turn leaked into session history")
		}
	}
}
