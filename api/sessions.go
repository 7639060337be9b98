package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
)

var ErrSessionNotFound = errors.New("form session not found")

type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// notifier collects the toasts of a session until the next response.
type notifier struct {
	mu    sync.Mutex
	items []Notification
}

func (n *notifier) add(level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, Notification{Level: level, Message: msg})
}

func (n *notifier) Success(msg string) { n.add("success", msg) }
func (n *notifier) Warn(msg string)    { n.add("warning", msg) }
func (n *notifier) Error(msg string)   { n.add("error", msg) }

func (n *notifier) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.items
	n.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

// session is one open booking form.
type session struct {
	id       uuid.UUID
	owner    string
	ctrl     *lifecycle.Controller
	notes    *notifier
	lastUsed time.Time
}

// Sessions holds the open booking forms of all users.
type Sessions struct {
	mu  sync.Mutex
	m   map[uuid.UUID]*session
	now func() time.Time
}

func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		m:   make(map[uuid.UUID]*session),
		now: now,
	}
}

func (s *Sessions) add(owner string, ctrl *lifecycle.Controller, notes *notifier) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		id:       uuid.New(),
		owner:    owner,
		ctrl:     ctrl,
		notes:    notes,
		lastUsed: s.now(),
	}
	s.m[sess.id] = sess
	return sess
}

// get returns the session and marks it used. Sessions of other users are
// reported as missing.
func (s *Sessions) get(id uuid.UUID, owner string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[id]
	if !ok || sess.owner != owner {
		return nil, ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return sess, nil
}

func (s *Sessions) remove(id uuid.UUID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.m[id]
	if !ok || sess.owner != owner {
		return ErrSessionNotFound
	}
	delete(s.m, id)
	return nil
}

// EvictIdle closes sessions not used since cutoff and returns how many were
// closed.
func (s *Sessions) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.m {
		if sess.lastUsed.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
