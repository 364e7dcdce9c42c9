package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrAlreadyAttached is returned when an attempt already has a live session.
var ErrAlreadyAttached = errors.New("attempt already has an attached session")

// Manager tracks the live controller per attempt. At most one session may be
// attached to an attempt at a time; a second device gets ErrAlreadyAttached
// until the first detaches.
type Manager struct {
	mu          sync.Mutex
	controllers map[uuid.UUID]*Controller
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{controllers: make(map[uuid.UUID]*Controller)}
}

// Attach registers a controller for its attempt.
func (m *Manager) Attach(c *Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.controllers[c.attempt.ID]; ok {
		return ErrAlreadyAttached
	}
	m.controllers[c.attempt.ID] = c
	return nil
}

// Detach removes the controller for an attempt, but only if it is the one
// currently registered. A stale detach after a reattach is a no-op.
func (m *Manager) Detach(c *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.controllers[c.attempt.ID]; ok && cur == c {
		delete(m.controllers, c.attempt.ID)
	}
}

// Get returns the live controller for an attempt, if any.
func (m *Manager) Get(attemptID uuid.UUID) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[attemptID]
	return c, ok
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}
