// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package nfc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Op names a transceiver primitive for fault injection.
type Op string

// Transceiver primitives.
const (
	OpDetect Op = "detect"
	OpAuth   Op = "auth"
	OpRead   Op = "read"
	OpWrite  Op = "write"
)

// Simulator is an in-memory MIFARE Classic 1K reader with one tag slot.
// It enforces sector authentication the way a real tag does: a read or
// write needs a successful Authenticate on the same sector since the last
// selection, and a failed operation drops the authentication.
//
// Simulator is safe for concurrent use so tests and the admin API can
// place and remove cards while a terminal session is running.
type Simulator struct {
	mu      sync.Mutex
	store   ImageStore
	key     Key
	present UID
	image   *Image
	// authSector is the sector unlocked since the last selection, or -1.
	authSector int
	faults     map[Op]int
	calls      map[Op]int
}

// NewSimulator creates a simulator backed by store. Tags seen for the first
// time are formatted with key in every trailer.
func NewSimulator(store ImageStore, key Key) *Simulator {
	if store == nil {
		store = NewMemoryImageStore()
	}
	return &Simulator{
		store:      store,
		key:        key,
		authSector: -1,
		faults:     make(map[Op]int),
		calls:      make(map[Op]int),
	}
}

// Present places the tag uid in the field, loading its stored image or
// creating a blank one.
func (s *Simulator) Present(uid UID) error {
	img, ok, err := s.store.Load(uid)
	if err != nil {
		return err
	}
	if !ok {
		img = NewImage(uid, s.key)
		if err := s.store.Save(uid, img); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = slices.Clone(uid)
	s.image = img
	s.authSector = -1
	return nil
}

// Remove takes the tag out of the field.
func (s *Simulator) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = nil
	s.image = nil
	s.authSector = -1
}

// FailNext makes the next n calls of op fail.
func (s *Simulator) FailNext(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] += n
}

// Calls returns how many times op has been invoked.
func (s *Simulator) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Block returns a copy of a block of the tag in the field, bypassing
// authentication.
func (s *Simulator) Block(block byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil || block >= Blocks {
		return nil, fmt.Errorf("%w: block %d", ErrIO, block)
	}
	return slices.Clone(s.image[block][:]), nil
}

// SetBlock overwrites a block of the tag in the field, bypassing
// authentication and access bits.
func (s *Simulator) SetBlock(block byte, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil || block >= Blocks || len(data) != BlockSize {
		return fmt.Errorf("%w: block %d", ErrIO, block)
	}
	copy(s.image[block][:], data)
	return s.store.Save(s.present, s.image)
}

// fault consumes one injected failure for op. Caller holds mu.
func (s *Simulator) fault(op Op) bool {
	s.calls[op]++
	if s.faults[op] > 0 {
		s.faults[op]--
		return true
	}
	return false
}

// DetectTag implements Transceiver. It answers immediately: the tag in the
// field, or ErrNoTag. Detecting re-selects the tag and drops any
// authentication.
func (s *Simulator) DetectTag(ctx context.Context, _ time.Duration) (UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authSector = -1
	if s.fault(OpDetect) || s.present == nil {
		return nil, ErrNoTag
	}
	return slices.Clone(s.present), nil
}

// Authenticate implements Transceiver.
func (s *Simulator) Authenticate(ctx context.Context, uid UID, block byte, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault(OpAuth) || !s.selected(uid) || block >= Blocks || s.image.KeyA(block) != key {
		s.authSector = -1
		return fmt.Errorf("%w: block %d", ErrAuth, block)
	}
	s.authSector = int(block / 4)
	return nil
}

// ReadBlock implements Transceiver.
func (s *Simulator) ReadBlock(ctx context.Context, uid UID, block byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault(OpRead) || !s.authorized(uid, block) {
		s.authSector = -1
		return nil, fmt.Errorf("%w: read block %d", ErrIO, block)
	}
	return slices.Clone(s.image[block][:]), nil
}

// WriteBlock implements Transceiver. Block 0 is read-only.
func (s *Simulator) WriteBlock(ctx context.Context, uid UID, block byte, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) != BlockSize {
		return fmt.Errorf("%w: write of %d bytes", ErrIO, len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault(OpWrite) || block == 0 || !s.authorized(uid, block) {
		s.authSector = -1
		return fmt.Errorf("%w: write block %d", ErrIO, block)
	}
	prev := s.image[block]
	copy(s.image[block][:], data)
	if err := s.store.Save(s.present, s.image); err != nil {
		s.image[block] = prev
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// selected reports whether uid is the tag in the field. Caller holds mu.
func (s *Simulator) selected(uid UID) bool {
	return s.present != nil && s.present.Equal(uid)
}

// authorized reports whether block may be transferred. Caller holds mu.
func (s *Simulator) authorized(uid UID, block byte) bool {
	return s.selected(uid) && block < Blocks && s.authSector == int(block/4)
}
