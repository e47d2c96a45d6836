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

// DefaultFlushEvery is the header write interval of the reference terminal.
const DefaultFlushEvery = 3

// FormatMode selects what Format does with the header.
type FormatMode int

const (
	// KeepHeader resets the header to a fresh one.
	KeepHeader FormatMode = iota
	// ClearHeader zeroes the header block, returning the card to NoHeader.
	ClearHeader
)

// String returns the mode name.
func (m FormatMode) String() string {
	if m == ClearHeader {
		return "clear"
	}
	return "keep-header"
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// FlushEvery persists the header after this many successful appends.
	// Until then the persisted header under-reports the ring by at most
	// FlushEvery-1 records. 1 writes the header on every append.
	FlushEvery int
	// Clock supplies Header.LastTimestamp. Defaults to time.Now.
	Clock func() time.Time
	// RecoverUnflushed rolls a loaded header forward over valid records
	// written after its last flush. Off by default: a header that lags the
	// ring makes the next session overwrite those slots.
	RecoverUnflushed bool
}

// ReadResult is the outcome of ReadRecent.
type ReadResult struct {
	Header Header `json:"header"`
	// Records are newest first.
	Records []TxRecord `json:"records"`
	// Corrupt, Blank and Unreadable count slots skipped as absent.
	Corrupt    int `json:"corrupt"`
	Blank      int `json:"blank"`
	Unreadable int `json:"unreadable"`
}

// AppendResult is the outcome of a successful Append.
type AppendResult struct {
	Slot   int    `json:"slot"`
	Block  byte   `json:"block"`
	Header Header `json:"header"`
	// HeaderWritten is true when this append flushed the header.
	HeaderWritten bool `json:"header_written"`
}

// FormatResult is the outcome of Format.
type FormatResult struct {
	Mode          string `json:"mode"`
	Cleared       int    `json:"cleared"`
	Failed        int    `json:"failed"`
	HeaderWritten bool   `json:"header_written"`
}

// Store is the ring buffer of one card. It caches the header after the
// first load and serves one session at a time.
//
// Headers are persisted in batches, so the persisted header may lag the
// ring by up to FlushEvery-1 records. A store kept across sessions with
// Resume keeps its working header; a new store sees only what the
// persisted header reports unless RecoverUnflushed is set.
type Store struct {
	io               *BlockIO
	uid              nfc.UID
	flushEvery       int
	now              func() time.Time
	recoverUnflushed bool

	header *Header
	// persisted is the header last read from or written to the card.
	persisted *Header
	pending   int
	recovered int
}

// NewStore creates a store for the tag uid.
func NewStore(io *BlockIO, uid nfc.UID, opts StoreOptions) *Store {
	if opts.FlushEvery < 1 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		io:               io,
		uid:              uid,
		flushEvery:       opts.FlushEvery,
		now:              opts.Clock,
		recoverUnflushed: opts.RecoverUnflushed,
	}
}

// UID returns the tag this store addresses.
func (s *Store) UID() nfc.UID {
	return s.uid
}

// Pending returns the appends not yet reflected in the persisted header.
func (s *Store) Pending() int {
	return s.pending
}

// Recovered returns how many slots the last header load rolled forward.
func (s *Store) Recovered() int {
	return s.recovered
}

// ReadBlock reads a raw block through the retry protocol.
func (s *Store) ReadBlock(ctx context.Context, block byte) ([]byte, error) {
	return s.io.ReadBlock(ctx, s.uid, block)
}

// WriteBlock writes a raw block through the retry protocol.
func (s *Store) WriteBlock(ctx context.Context, block byte, data []byte) error {
	return s.io.WriteBlock(ctx, s.uid, block, data)
}

// ReadHeader reads and validates the persisted header. It returns nil and
// no error when the header is missing or corrupt, and an error only when
// the block cannot be read.
func (s *Store) ReadHeader(ctx context.Context) (*Header, error) {
	raw, err := s.ReadBlock(ctx, HeaderBlock)
	if err != nil {
		return nil, err
	}
	h, err := UnpackHeader(raw)
	if err != nil {
		logging.CtxDebug(ctx).Err(err).Str("card", s.uid.String()).Msg("No valid card header")
		return nil, nil
	}
	return &h, nil
}

// LoadOrInitHeader returns the working header, writing a fresh one when the
// card has none. With RecoverUnflushed an existing, non-empty header is
// rolled forward over records appended after its last flush.
func (s *Store) LoadOrInitHeader(ctx context.Context) (Header, error) {
	if s.header != nil {
		return *s.header, nil
	}

	h, err := s.ReadHeader(ctx)
	if err != nil {
		return Header{}, err
	}

	if h == nil {
		h, err = s.initHeader(ctx)
		if err != nil {
			return Header{}, err
		}
		s.header = h
		s.persisted = cloneHeader(h)
		s.pending = 0
		s.recovered = 0
		return *h, nil
	}

	s.persisted = cloneHeader(h)
	recovered := 0
	// An empty header says nothing about the slots: they may predate a
	// re-initialization.
	if s.recoverUnflushed && !(h.TotalCount == 0 && h.LastTimestamp == 0) {
		recovered = s.rollForward(ctx, h)
	}
	s.header = h
	s.pending = recovered
	s.recovered = recovered
	if recovered > 0 {
		metrics.RecordRecoveredAppends(recovered)
		logging.Info().Str("card", s.uid.String()).Int("records", recovered).Uint8("write_index", h.WriteIndex).Msg("Recovered appends past stale card header")
	}
	return *h, nil
}

// Resume starts a new session on a store kept from an earlier one. The
// working header and its pending appends are kept while the card still
// carries the header this store last saw. Otherwise the card was written
// elsewhere in between and the next load starts from the card's header.
func (s *Store) Resume(ctx context.Context) error {
	if s.header == nil {
		return nil
	}
	h, err := s.ReadHeader(ctx)
	if err != nil {
		return err
	}
	if h != nil && s.persisted != nil && *h == *s.persisted {
		s.recovered = 0
		return nil
	}
	logging.CtxInfo(ctx).Str("card", s.uid.String()).Int("pending", s.pending).Msg("Card header changed since last session, reloading")
	s.header = nil
	s.persisted = nil
	s.pending = 0
	s.recovered = 0
	return nil
}

func cloneHeader(h *Header) *Header {
	c := *h
	return &c
}

func (s *Store) initHeader(ctx context.Context) (*Header, error) {
	fresh := Header{Version: HeaderVersion}
	err := s.WriteBlock(ctx, HeaderBlock, PackHeader(fresh))
	metrics.RecordHeaderWrite(err)
	if err != nil {
		return nil, fmt.Errorf("initialize header: %w", err)
	}

	s.io.Reselect(ctx, s.uid)
	verified, err := s.ReadHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify header: %w", err)
	}
	if verified == nil || *verified != fresh {
		return nil, fmt.Errorf("%w: header did not verify after write", ErrCommunication)
	}
	logging.Info().Str("card", s.uid.String()).Msg("Initialized card header")
	return verified, nil
}

// rollForward advances h over consecutive valid records at and after its
// write index that are no older than its last timestamp. At most
// flushEvery-1 slots can be unflushed.
func (s *Store) rollForward(ctx context.Context, h *Header) int {
	recovered := 0
	for recovered < s.flushEvery-1 {
		block, err := RingBlock(int(h.WriteIndex))
		if err != nil {
			break
		}
		raw, err := s.ReadBlock(ctx, block)
		if err != nil || IsBlank(raw) {
			break
		}
		rec, err := UnpackRecord(raw)
		if err != nil || rec.Timestamp < h.LastTimestamp {
			break
		}
		advance(h, rec.Timestamp)
		recovered++
	}
	return recovered
}

func advance(h *Header, ts uint32) {
	h.WriteIndex = uint8((int(h.WriteIndex) + 1) % Capacity)
	if h.TotalCount < MaxTotalCount {
		h.TotalCount++
	}
	h.LastTimestamp = ts
}

// ReadRecent returns up to limit records, newest first. Slots that are
// corrupt, blank or unreadable are skipped and counted, never returned.
func (s *Store) ReadRecent(ctx context.Context, limit int) (ReadResult, error) {
	h, err := s.LoadOrInitHeader(ctx)
	if err != nil {
		return ReadResult{}, err
	}

	res := ReadResult{Header: h, Records: []TxRecord{}}
	toRead := min(limit, Capacity, int(h.TotalCount))
	for i := 0; i < toRead; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		block, _ := RingBlock(slotAt(int(h.WriteIndex), i+1))
		raw, err := s.ReadBlock(ctx, block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Unreadable++
			continue
		}
		if IsBlank(raw) {
			res.Blank++
			continue
		}
		rec, err := UnpackRecord(raw)
		if err != nil {
			logging.Debug().Err(err).Uint8("block", block).Msg("Skipping corrupt card record")
			res.Corrupt++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	metrics.RecordSlotsSkipped(res.Corrupt, res.Blank, res.Unreadable)
	return res, nil
}

// Append writes rec into the slot at the write index. On a write failure
// nothing advances. The header is persisted every FlushEvery appends; if
// that write fails the record is kept, the header stays pending and an
// error is returned alongside the result.
func (s *Store) Append(ctx context.Context, rec TxRecord) (AppendResult, error) {
	h, err := s.LoadOrInitHeader(ctx)
	if err != nil {
		return AppendResult{}, err
	}

	slot := int(h.WriteIndex)
	block, err := RingBlock(slot)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	if err := s.WriteBlock(ctx, block, PackRecord(rec)); err != nil {
		metrics.RecordAppend(err)
		return AppendResult{}, fmt.Errorf("append record: %w", err)
	}
	metrics.RecordAppend(nil)

	advance(s.header, uint32(s.now().Unix()))
	s.pending++

	res := AppendResult{Slot: slot, Block: block}
	if s.pending >= s.flushEvery {
		err := s.flush(ctx)
		if err != nil {
			res.Header = *s.header
			return res, fmt.Errorf("append header: %w", err)
		}
		res.HeaderWritten = true
	}
	res.Header = *s.header
	return res, nil
}

// Flush persists the working header if any appends are pending.
func (s *Store) Flush(ctx context.Context) error {
	if s.header == nil || s.pending == 0 {
		return nil
	}
	return s.flush(ctx)
}

func (s *Store) flush(ctx context.Context) error {
	err := s.WriteBlock(ctx, HeaderBlock, PackHeader(*s.header))
	metrics.RecordHeaderWrite(err)
	if err != nil {
		return err
	}
	s.persisted = cloneHeader(s.header)
	s.pending = 0
	return nil
}

// Format zeroes every ring slot, then resets or clears the header. Slot
// write failures are counted, not fatal; a header write failure is
// returned.
func (s *Store) Format(ctx context.Context, mode FormatMode) (FormatResult, error) {
	res := FormatResult{Mode: mode.String()}
	zero := make([]byte, nfc.BlockSize)
	for _, block := range DataBlocks() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.WriteBlock(ctx, block, zero); err != nil {
			res.Failed++
			continue
		}
		res.Cleared++
	}

	header := zero
	if mode == KeepHeader {
		header = PackHeader(Header{Version: HeaderVersion})
	}
	err := s.WriteBlock(ctx, HeaderBlock, header)
	metrics.RecordHeaderWrite(err)
	if err != nil {
		return res, fmt.Errorf("format header: %w", err)
	}
	res.HeaderWritten = true

	s.header = nil
	s.persisted = nil
	s.pending = 0
	s.recovered = 0
	logging.Info().Str("card", s.uid.String()).Str("mode", res.Mode).Int("cleared", res.Cleared).Int("failed", res.Failed).Msg("Card formatted")
	return res, nil
}
