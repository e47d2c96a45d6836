// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package nfc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
)

// PresenceConfig configures WaitForCard.
type PresenceConfig struct {
	// PollInterval is the spacing between detect attempts.
	PollInterval time.Duration
	// StableReads is how many consecutive detections of the same UID
	// accept a card.
	StableReads int
	// Timeout bounds the whole wait. Zero waits until ctx is done.
	Timeout time.Duration
}

// DefaultPresenceConfig matches the terminal defaults.
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		PollInterval: 200 * time.Millisecond,
		StableReads:  3,
		Timeout:      60 * time.Second,
	}
}

// WaitForCard polls tr until the same UID has been read StableReads times
// in a row. A different UID or a failed poll restarts the count; an empty
// poll does not. Poll failures are retried until the timeout, except
// ErrReaderUnavailable which is returned at once.
// It returns ErrNoCard when the timeout passes and ctx's error when ctx is
// done first.
func WaitForCard(ctx context.Context, tr Transceiver, cfg PresenceConfig) (UID, error) {
	if cfg.StableReads < 1 {
		cfg.StableReads = 1
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(cfg.PollInterval), 1)

	var last UID
	count := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, presenceDone(ctx, err)
		}

		uid, err := tr.DetectTag(ctx, cfg.PollInterval)
		switch {
		case err == nil:
			if last.Equal(uid) {
				count++
			} else {
				last = uid
				count = 1
			}
			if count >= cfg.StableReads {
				metrics.RecordCardDetect("ok")
				logging.Debug().Str("uid", uid.String()).Int("reads", count).Msg("Card detected")
				return uid, nil
			}
		case errors.Is(err, ErrNoTag):
		case ctx.Err() != nil:
			return nil, presenceDone(ctx, ctx.Err())
		case errors.Is(err, ErrReaderUnavailable):
			metrics.RecordCardDetect("error")
			return nil, fmt.Errorf("detect tag: %w", err)
		default:
			logging.Debug().Err(err).Msg("Detect failed, polling again")
			last = nil
			count = 0
		}
	}
}

// presenceDone maps the end of a wait to ErrNoCard or the caller's
// cancellation.
func presenceDone(ctx context.Context, err error) error {
	// The limiter reports a wait that would overrun the deadline before
	// ctx itself expires.
	if errors.Is(ctx.Err(), context.Canceled) {
		metrics.RecordCardDetect("canceled")
		return ctx.Err()
	}
	metrics.RecordCardDetect("timeout")
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return ErrNoCard
	}
	return fmt.Errorf("%w: %v", ErrNoCard, err)
}
