// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package services

import (
	"context"
)

// TerminalWorker matches terminal.Worker's Run method. The interface keeps
// this package free of the terminal package's reader dependencies.
type TerminalWorker interface {
	// Run serves queued purchases until ctx is canceled.
	Run(ctx context.Context) error
}

// TerminalService runs the purchase worker under supervision. A panic or
// error in the worker restarts it; queued requests submitted while it is
// down wait in the channel.
//
//	worker := terminal.NewWorker(term, cfg.Server.QueueSize)
//	tree.AddCardService(services.NewTerminalService(worker))
type TerminalService struct {
	worker TerminalWorker
	name   string
}

// NewTerminalService wraps worker.
func NewTerminalService(worker TerminalWorker) *TerminalService {
	return &TerminalService{
		worker: worker,
		name:   "terminal-worker",
	}
}

// Serve implements suture.Service.
func (s *TerminalService) Serve(ctx context.Context) error {
	return s.worker.Run(ctx)
}

// String implements fmt.Stringer.
func (s *TerminalService) String() string {
	return s.name
}
