// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package card

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tapguard/internal/nfc"
)

var testUID = nfc.UID{0x04, 0xA2, 0x3B, 0x91}

// testClock is the fixed wall clock used for header timestamps.
var testClock = func() time.Time { return time.Unix(1000, 0) }

// sleepRecorder replaces the backoff sleep.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func newTestSimulator(t *testing.T) *nfc.Simulator {
	t.Helper()
	sim := nfc.NewSimulator(nil, nfc.DefaultKey)
	if err := sim.Present(testUID); err != nil {
		t.Fatalf("Present: %v", err)
	}
	return sim
}

func newTestIO(tr nfc.Transceiver) *BlockIO {
	policy := RetryPolicy{Attempts: 3, Backoff: 10 * time.Millisecond, ReselectAttempts: 1}
	return NewBlockIO(tr, nfc.DefaultKey, policy, WithSleep((&sleepRecorder{}).sleep))
}

func newTestStore(tr nfc.Transceiver, flushEvery int) *Store {
	return NewStore(newTestIO(tr), testUID, StoreOptions{FlushEvery: flushEvery, Clock: testClock})
}

func newRecoveringStore(tr nfc.Transceiver, flushEvery int) *Store {
	return NewStore(newTestIO(tr), testUID, StoreOptions{FlushEvery: flushEvery, Clock: testClock, RecoverUnflushed: true})
}

// persistedHeader decodes the header block straight off the simulated tag.
func persistedHeader(t *testing.T, sim *nfc.Simulator) (Header, error) {
	t.Helper()
	raw, err := sim.Block(HeaderBlock)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	return UnpackHeader(raw)
}

func record(ts uint32) TxRecord {
	return TxRecord{Timestamp: ts, AmountCents: int32(ts % 10000), MerchantID: 1234, Zip: 10001}
}

// headerWriteFailer fails every write to the header block while armed.
type headerWriteFailer struct {
	nfc.Transceiver
	armed bool
}

func (f *headerWriteFailer) WriteBlock(ctx context.Context, uid nfc.UID, block byte, data []byte) error {
	if f.armed && block == HeaderBlock {
		return nfc.ErrIO
	}
	return f.Transceiver.WriteBlock(ctx, uid, block, data)
}

// deadReader fails every authentication.
type deadReader struct {
	nfc.Transceiver
	err   error
	auths int
}

func (d *deadReader) DetectTag(context.Context, time.Duration) (nfc.UID, error) {
	return nil, nfc.ErrNoTag
}

func (d *deadReader) Authenticate(context.Context, nfc.UID, byte, nfc.Key) error {
	d.auths++
	return d.err
}
