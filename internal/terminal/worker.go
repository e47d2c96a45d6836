// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package terminal

import (
	"context"
	"errors"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
)

var (
	// ErrQueueFull is returned when too many purchases are waiting.
	ErrQueueFull = errors.New("purchase queue is full")

	// ErrWorkerStopped is returned when the worker stops before handling
	// a purchase.
	ErrWorkerStopped = errors.New("terminal worker stopped")
)

type request struct {
	ctx      context.Context
	purchase Purchase
	reply    chan result
}

type result struct {
	outcome *Outcome
	err     error
}

// Worker feeds queued purchases to a Terminal one at a time.
type Worker struct {
	term  *Terminal
	queue chan request
}

// NewWorker creates a worker with room for queueSize waiting purchases.
func NewWorker(term *Terminal, queueSize int) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Worker{
		term:  term,
		queue: make(chan request, queueSize),
	}
}

// Submit queues p and waits for its outcome. It fails fast with
// ErrQueueFull when the queue has no room.
func (w *Worker) Submit(ctx context.Context, p Purchase) (*Outcome, error) {
	req := request{ctx: ctx, purchase: p, reply: make(chan result, 1)}
	select {
	case w.queue <- req:
		metrics.SetQueueDepth(len(w.queue))
	default:
		return nil, ErrQueueFull
	}

	select {
	case res := <-req.reply:
		return res.outcome, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes purchases until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	logging.Info().Int("queue_size", cap(w.queue)).Msg("Terminal worker started")
	defer logging.Info().Msg("Terminal worker stopped")

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case req := <-w.queue:
			metrics.SetQueueDepth(len(w.queue))
			if req.ctx.Err() != nil {
				req.reply <- result{err: req.ctx.Err()}
				continue
			}
			sessionCtx, cancel := context.WithCancel(req.ctx)
			stop := context.AfterFunc(ctx, cancel)
			out, err := w.term.ProcessPurchase(sessionCtx, req.purchase)
			stop()
			cancel()
			req.reply <- result{outcome: out, err: err}
		}
	}
}

// drain answers every queued purchase with ErrWorkerStopped.
func (w *Worker) drain() {
	for {
		select {
		case req := <-w.queue:
			req.reply <- result{err: ErrWorkerStopped}
		default:
			metrics.SetQueueDepth(0)
			return
		}
	}
}
