// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

package scheduler

import "sync"

// Monitor is the single source of connectivity truth. Components receive it
// as an injected capability instead of re-querying the network ad hoc.
type Monitor interface {
	// Online reports current reachability.
	Online() bool
	// Subscribe registers a listener for reachability transitions and
	// returns a cancel function.
	Subscribe(fn func(online bool)) (cancel func())
}

// ManualMonitor is a Monitor whose state is driven by the embedding
// application (fed from whatever OS reachability API the platform offers)
// or by tests.
type ManualMonitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]func(bool)
}

// NewManualMonitor creates a monitor with the given starting state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{
		online:    online,
		listeners: make(map[int]func(bool)),
	}
}

// Online reports the last state set.
func (m *ManualMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates reachability and notifies listeners on transitions.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers a transition listener.
func (m *ManualMonitor) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}
