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

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
)

// BreakerConfig configures BreakerTransceiver.
type BreakerConfig struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// Timeout is how long the breaker stays open before letting one probe
	// through.
	Timeout time.Duration
}

// BreakerTransceiver wraps a Transceiver with a circuit breaker so a dead or
// unplugged reader fails fast instead of burning the full retry budget of
// every block access.
//
// An empty field (ErrNoTag) and context cancellation are not reader
// failures and never count toward opening the breaker.
type BreakerTransceiver struct {
	next Transceiver
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerTransceiver wraps next.
func NewBreakerTransceiver(next Transceiver, cfg BreakerConfig) *BreakerTransceiver {
	const name = "reader"
	metrics.ReaderBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.Failures
			if trip {
				logging.Warn().Uint32("failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening reader circuit")
			}
			return trip
		},

		OnStateChange: func(_ string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordBreakerTransition(stateToString(from), stateToString(to), stateToInt(to))
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNoTag) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &BreakerTransceiver{next: next, cb: cb}
}

// State returns the breaker state as "closed", "half-open" or "open".
func (b *BreakerTransceiver) State() string {
	return stateToString(b.cb.State())
}

func (b *BreakerTransceiver) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrReaderUnavailable, err)
	}
	return result, err
}

// DetectTag implements Transceiver.
func (b *BreakerTransceiver) DetectTag(ctx context.Context, timeout time.Duration) (UID, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.DetectTag(ctx, timeout)
	})
	if err != nil {
		return nil, err
	}
	uid, _ := result.(UID)
	return uid, nil
}

// Authenticate implements Transceiver.
func (b *BreakerTransceiver) Authenticate(ctx context.Context, uid UID, block byte, key Key) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Authenticate(ctx, uid, block, key)
	})
	return err
}

// ReadBlock implements Transceiver.
func (b *BreakerTransceiver) ReadBlock(ctx context.Context, uid UID, block byte) ([]byte, error) {
	result, err := b.execute(func() (any, error) {
		return b.next.ReadBlock(ctx, uid, block)
	})
	if err != nil {
		return nil, err
	}
	data, _ := result.([]byte)
	return data, nil
}

// WriteBlock implements Transceiver.
func (b *BreakerTransceiver) WriteBlock(ctx context.Context, uid UID, block byte, data []byte) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.WriteBlock(ctx, uid, block, data)
	})
	return err
}

// stateToInt converts circuit breaker state to numeric value for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
