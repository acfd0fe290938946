// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
)

// Manager runs sessions concurrently, one goroutine each. Sessions share
// nothing but the Observer.
type Manager struct {
	mu       sync.Mutex
	sessions []*Session
	cancel   context.CancelFunc
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers a session. Its Index is set to its position.
func (m *Manager) Add(config Config) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	config.Index = len(m.sessions)
	session := New(config)
	m.sessions = append(m.sessions, session)
	return session
}

// Len returns the number of sessions added.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run runs every added session and returns their reports ordered by
// index once all have ended.
func (m *Manager) Run(ctx context.Context) []Report {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	sessions := append([]*Session(nil), m.sessions...)
	m.mu.Unlock()
	defer cancel()

	reports := make([]Report, len(sessions))
	var wg sync.WaitGroup
	for index, session := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[index] = session.Run(ctx)
		}()
	}
	wg.Wait()
	return reports
}

// Shutdown cancels every running session. Each ends in StateError with
// transport.ErrCancelled.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// Failed returns the reports of sessions that did not finish.
func Failed(reports []Report) []Report {
	var failed []Report
	for _, report := range reports {
		if !report.Succeeded() {
			failed = append(failed, report)
		}
	}
	return failed
}
