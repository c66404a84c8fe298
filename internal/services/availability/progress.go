// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"sync"
	"time"
)

type EventType string

const (
	EventStarted  EventType = "started"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Terminal reports whether no further events follow for the session.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one progress notification of a check session.
type Event struct {
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Progress  *float64  `json:"progress,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives progress events. Publish must not block.
type Sink interface {
	Publish(Event)
}

type noopSink struct{}

func (noopSink) Publish(Event) {}

const (
	subscriberBuffer       = 64
	DefaultReplayRetention = 5 * time.Minute
)

type sessionLog struct {
	events      []Event
	subscribers map[chan Event]struct{}
	done        bool
}

// Broker fans session events out to subscribers and keeps them for late
// subscribers until a while after the session ends.
type Broker struct {
	mu        sync.Mutex
	sessions  map[string]*sessionLog
	retention time.Duration
	afterFunc func(time.Duration, func())
}

func NewBroker(retention time.Duration) *Broker {
	if retention <= 0 {
		retention = DefaultReplayRetention
	}
	return &Broker{
		sessions:  make(map[string]*sessionLog),
		retention: retention,
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

func (b *Broker) session(id string) *sessionLog {
	s, ok := b.sessions[id]
	if !ok {
		s = &sessionLog{subscribers: make(map[chan Event]struct{})}
		b.sessions[id] = s
	}
	return s
}

// Publish records ev and hands it to every subscriber with room for it.
// Subscribers that fall behind miss events rather than stalling the check.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.session(ev.SessionID)
	if ev.Type == EventStarted && s.done {
		// reused id: the pending forget timer only drops the old log
		s = &sessionLog{subscribers: make(map[chan Event]struct{})}
		b.sessions[ev.SessionID] = s
	}
	s.events = append(s.events, ev)

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}

	if ev.Type.Terminal() && !s.done {
		s.done = true
		for ch := range s.subscribers {
			close(ch)
		}
		s.subscribers = make(map[chan Event]struct{})

		id := ev.SessionID
		b.afterFunc(b.retention, func() { b.forget(id, s) })
	}
}

func (b *Broker) forget(id string, s *sessionLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions[id] == s {
		delete(b.sessions, id)
	}
}

// Subscribe returns the events published so far and a channel for the rest.
// The channel is closed after the terminal event, or immediately when the
// session already ended. Call cancel to stop listening early.
func (b *Broker) Subscribe(sessionID string) (replay []Event, events <-chan Event, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.session(sessionID)
	replay = append([]Event(nil), s.events...)

	ch := make(chan Event, subscriberBuffer)
	if s.done {
		close(ch)
		return replay, ch, func() {}
	}
	s.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			if len(s.subscribers) == 0 && len(s.events) == 0 && b.sessions[sessionID] == s {
				delete(b.sessions, sessionID)
			}
		})
	}
	return replay, ch, cancel
}

// Events returns a copy of the recorded events of a session.
func (b *Broker) Events(sessionID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[sessionID]; ok {
		return append([]Event(nil), s.events...)
	}
	return nil
}
