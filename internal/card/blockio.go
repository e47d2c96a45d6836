// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
	"github.com/tomtom215/tapguard/internal/nfc"
)

// RetryPolicy bounds the authenticate/transfer/reselect loop of a block
// access.
type RetryPolicy struct {
	// Attempts is the total number of authenticate+transfer tries.
	Attempts int
	// Backoff is the pause after a reselect, before the next try.
	Backoff time.Duration
	// ReselectAttempts is how many detect polls a reselect may spend
	// finding the same tag again.
	ReselectAttempts int
	// ReselectTimeout is the detect timeout of each reselect poll.
	ReselectTimeout time.Duration
}

// DefaultRetryPolicy returns the policy of the reference terminal.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:         3,
		Backoff:          100 * time.Millisecond,
		ReselectAttempts: 3,
		ReselectTimeout:  200 * time.Millisecond,
	}
}

// ioState is a step of a block access.
type ioState int

const (
	stateAuthenticate ioState = iota
	stateTransfer
	stateReselect
	stateBackoff
)

// BlockIO performs authenticated single-block reads and writes with
// bounded retries. It is owned by one session and is not safe for
// concurrent use.
type BlockIO struct {
	tr     nfc.Transceiver
	key    nfc.Key
	policy RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

// BlockIOOption configures a BlockIO.
type BlockIOOption func(*BlockIO)

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(fn func(context.Context, time.Duration) error) BlockIOOption {
	return func(b *BlockIO) {
		b.sleep = fn
	}
}

// NewBlockIO creates a BlockIO authenticating every sector with key.
func NewBlockIO(tr nfc.Transceiver, key nfc.Key, policy RetryPolicy, opts ...BlockIOOption) *BlockIO {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.ReselectAttempts < 1 {
		policy.ReselectAttempts = 1
	}
	b := &BlockIO{
		tr:     tr,
		key:    key,
		policy: policy,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ReadBlock authenticates and reads one block.
func (b *BlockIO) ReadBlock(ctx context.Context, uid nfc.UID, block byte) ([]byte, error) {
	var data []byte
	err := b.run(ctx, "read", uid, block, func() error {
		got, err := b.tr.ReadBlock(ctx, uid, block)
		if err != nil {
			return err
		}
		if len(got) != nfc.BlockSize {
			return fmt.Errorf("%w: short read of %d bytes", nfc.ErrIO, len(got))
		}
		data = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteBlock authenticates and writes one block. The manufacturer block and
// sector trailers are refused.
func (b *BlockIO) WriteBlock(ctx context.Context, uid nfc.UID, block byte, data []byte) error {
	if block == 0 || nfc.IsTrailer(block) || block >= nfc.Blocks {
		return fmt.Errorf("%w: %d", ErrProtectedBlock, block)
	}
	if len(data) != nfc.BlockSize {
		return fmt.Errorf("write block %d: data must be %d bytes, got %d", block, nfc.BlockSize, len(data))
	}
	return b.run(ctx, "write", uid, block, func() error {
		return b.tr.WriteBlock(ctx, uid, block, data)
	})
}

// Reselect polls for uid until it answers again or the reselect budget is
// spent. It reports whether the tag was found.
func (b *BlockIO) Reselect(ctx context.Context, uid nfc.UID) bool {
	for i := 0; i < b.policy.ReselectAttempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		got, err := b.tr.DetectTag(ctx, b.policy.ReselectTimeout)
		if err == nil && got.Equal(uid) {
			return true
		}
	}
	return false
}

// run drives one block access through authenticate, transfer, reselect and
// backoff until the transfer succeeds or the attempt budget is spent.
func (b *BlockIO) run(ctx context.Context, op string, uid nfc.UID, block byte, transfer func() error) error {
	start := time.Now()
	attempt := 1
	state := stateAuthenticate
	var lastErr error

	finish := func(err error) error {
		metrics.RecordBlockOp(op, attempt, time.Since(start), err)
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		switch state {
		case stateAuthenticate:
			if err := b.tr.Authenticate(ctx, uid, block, b.key); err != nil {
				lastErr = err
				state = stateReselect
				continue
			}
			state = stateTransfer

		case stateTransfer:
			if err := transfer(); err != nil {
				lastErr = err
				state = stateReselect
				continue
			}
			if attempt > 1 {
				logging.Debug().Str("op", op).Uint8("block", block).Int("attempts", attempt).Msg("Block access recovered after retry")
			}
			return finish(nil)

		case stateReselect:
			if errors.Is(lastErr, nfc.ErrReaderUnavailable) || attempt >= b.policy.Attempts {
				err := fmt.Errorf("%w: %s block %d after %d attempts: %w", ErrCommunication, op, block, attempt, lastErr)
				logging.Warn().Err(lastErr).Str("op", op).Uint8("block", block).Int("attempts", attempt).Msg("Block access failed")
				return finish(err)
			}
			logging.Debug().Err(lastErr).Str("op", op).Uint8("block", block).Int("attempt", attempt).Msg("Block access failed, reselecting")
			b.Reselect(ctx, uid)
			state = stateBackoff

		case stateBackoff:
			if err := b.sleep(ctx, b.policy.Backoff); err != nil {
				return finish(err)
			}
			attempt++
			state = stateAuthenticate
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
