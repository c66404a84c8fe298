// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	ErrSessionExists   = errors.New("a check with this session id is already running")
	ErrSessionNotFound = errors.New("session not found")
)

type session struct {
	cancelled atomic.Bool
	cancel    context.CancelFunc
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

// register derives the session context from ctx. The returned session is
// cancelled by cancel(id) or when ctx ends.
func (r *sessionRegistry) register(ctx context.Context, id string) (context.Context, *session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, nil, ErrSessionExists
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel}
	r.sessions[id] = s
	return sctx, s, nil
}

func (r *sessionRegistry) cancel(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.cancelled.Store(true)
	s.cancel()
	return nil
}

func (r *sessionRegistry) remove(id string, s *session) {
	r.mu.Lock()
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	s.cancel()
}

func (r *sessionRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
