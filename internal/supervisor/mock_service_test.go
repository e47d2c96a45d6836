// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// MockService is a controllable suture.Service used by the tree tests.
type MockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
	mu         sync.Mutex
}

// NewMockService creates a new mock service for testing.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)

	m.mu.Lock()
	maxFails := m.maxFails
	m.mu.Unlock()

	if maxFails > 0 && m.failCount.Add(1) <= maxFails {
		return errors.New("reader not responding")
	}

	<-ctx.Done()
	return ctx.Err()
}

// SetFailCount makes the first n runs fail immediately.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

// StartCount returns how many times Serve was called.
func (m *MockService) StartCount() int32 {
	return m.startCount.Load()
}

// StopCount returns how many times Serve returned.
func (m *MockService) StopCount() int32 {
	return m.stopCount.Load()
}

// String implements fmt.Stringer.
func (m *MockService) String() string {
	return m.name
}
