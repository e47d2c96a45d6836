// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockWorker implements TerminalWorker.
type mockWorker struct {
	runErr     error
	runCount   atomic.Int32
	runStarted chan struct{}
}

func newMockWorker() *mockWorker {
	return &mockWorker{runStarted: make(chan struct{}, 8)}
}

func (m *mockWorker) Run(ctx context.Context) error {
	n := m.runCount.Add(1)
	select {
	case m.runStarted <- struct{}{}:
	default:
	}
	// Fail only the first run so restarts can be observed.
	if m.runErr != nil && n == 1 {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTerminalService_Interface(t *testing.T) {
	t.Parallel()
	var _ suture.Service = (*TerminalService)(nil)
}

func TestTerminalService_String(t *testing.T) {
	t.Parallel()
	svc := NewTerminalService(newMockWorker())
	if svc.String() != "terminal-worker" {
		t.Errorf("String() = %q, want terminal-worker", svc.String())
	}
}

func TestTerminalService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("returns context error on cancellation", func(t *testing.T) {
		t.Parallel()
		worker := newMockWorker()
		svc := NewTerminalService(worker)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		select {
		case <-worker.runStarted:
		case <-time.After(time.Second):
			t.Fatal("worker did not start")
		}
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return after cancellation")
		}
	})

	t.Run("propagates worker error", func(t *testing.T) {
		t.Parallel()
		worker := newMockWorker()
		worker.runErr = errors.New("reader lost")
		svc := NewTerminalService(worker)

		if err := svc.Serve(context.Background()); !errors.Is(err, worker.runErr) {
			t.Errorf("Serve() = %v, want %v", err, worker.runErr)
		}
	})
}

func TestTerminalService_RestartedBySupervisor(t *testing.T) {
	t.Parallel()

	worker := newMockWorker()
	worker.runErr = errors.New("reader lost")
	svc := NewTerminalService(worker)

	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for worker.runCount.Load() < 2 {
		select {
		case <-worker.runStarted:
		case <-deadline:
			t.Fatalf("worker ran %d times, want a restart", worker.runCount.Load())
		}
	}

	cancel()
	<-errCh
}
