// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	def := DefaultTreeConfig()
	if def.FailureThreshold != 5 || def.FailureDecay != 30 ||
		def.FailureBackoff != 15*time.Second || def.ShutdownTimeout != 10*time.Second {
		t.Errorf("DefaultTreeConfig() = %+v", def)
	}

	tests := []struct {
		name string
		in   TreeConfig
		want TreeConfig
	}{
		{"zero value gets defaults", TreeConfig{}, def},
		{
			"explicit values kept",
			TreeConfig{FailureThreshold: 2, FailureDecay: 1, FailureBackoff: time.Millisecond, ShutdownTimeout: time.Second},
			TreeConfig{FailureThreshold: 2, FailureDecay: 1, FailureBackoff: time.Millisecond, ShutdownTimeout: time.Second},
		},
		{
			"partial config is completed",
			TreeConfig{ShutdownTimeout: time.Second},
			TreeConfig{FailureThreshold: 5, FailureDecay: 30, FailureBackoff: 15 * time.Second, ShutdownTimeout: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewSupervisorTree(quietLogger(), tt.in)
			if err != nil {
				t.Fatalf("NewSupervisorTree() error = %v", err)
			}
			if tree.root == nil {
				t.Fatal("root = nil")
			}
			if tree.config != tt.want {
				t.Errorf("config = %+v, want %+v", tree.config, tt.want)
			}
		})
	}
}

func TestSupervisorTree_StartsBothLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	worker := NewMockService("terminal-worker")
	server := NewMockService("http-server")
	tree.AddCardService(worker)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "both layers to start", func() bool {
		return worker.StartCount() == 1 && server.StartCount() == 1
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree stopped with %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}

	if worker.StopCount() != 1 || server.StopCount() != 1 {
		t.Errorf("stops = %d/%d, want 1/1", worker.StopCount(), server.StopCount())
	}
	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) != 0 {
		t.Errorf("unstopped services: %v", unstopped)
	}
}

func TestSupervisorTree_ReaderFaultStaysInCardLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	worker := NewMockService("terminal-worker")
	worker.SetFailCount(2)
	server := NewMockService("http-server")
	tree.AddCardService(worker)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "the worker to be restarted twice", func() bool {
		return worker.StartCount() >= 3
	})
	if got := server.StartCount(); got != 1 {
		t.Errorf("http-server started %d times, want 1", got)
	}

	cancel()
	<-errCh
}
