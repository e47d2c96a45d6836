// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
)

var (
	// ErrClosed is returned by operations on a closed journal.
	ErrClosed = errors.New("journal is closed")

	// ErrNilEntry is returned when Append is called with nil.
	ErrNilEntry = errors.New("entry cannot be nil")
)

// Outcomes of a processed purchase.
const (
	OutcomeRecorded     = "recorded"
	OutcomeAppendFailed = "append_failed"
)

// entryPrefix namespaces entries. Keys sort by record time:
// entry:<20-digit unix nanos>:<uuid>
const entryPrefix = "entry:"

// Entry is one processed purchase.
type Entry struct {
	ID         string          `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	CardID     string          `json:"card_id"`
	Timestamp  int64           `json:"timestamp"`
	MerchantID uint32          `json:"merchant_id"`
	Amount     decimal.Decimal `json:"amount"`
	Zip        string          `json:"zip,omitempty"`

	Flagged bool `json:"flagged"`
	// Reasons are the reason tags in rule order.
	Reasons []string `json:"reasons"`
	// Rules are the rule types that fired, parallel to Reasons.
	Rules []string `json:"rules"`

	// Outcome is OutcomeRecorded or OutcomeAppendFailed.
	Outcome     string `json:"outcome"`
	AppendError string `json:"append_error,omitempty"`
	Slot        int    `json:"slot"`

	// Replayed is how many card records warmed the rules first.
	Replayed   int   `json:"replayed"`
	DurationNs int64 `json:"duration_ns"`
}

// Config configures a journal.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Retention expires entries after this long. Zero keeps them.
	Retention time.Duration
	// SyncWrites fsyncs every append.
	SyncWrites bool
}

// Summary aggregates the journal.
type Summary struct {
	Total   int `json:"total"`
	Flagged int `json:"flagged"`
	// FlaggedWithReasons counts flagged entries carrying at least one reason.
	FlaggedWithReasons int `json:"flagged_with_reasons"`
	// Explainability is FlaggedWithReasons / Flagged, 1 when nothing was
	// flagged.
	Explainability float64        `json:"explainability"`
	AppendFailures int            `json:"append_failures"`
	ByRule         map[string]int `json:"by_rule"`
	Cards          int            `json:"cards"`
}

// Store is a badger-backed purchase journal. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	config Config

	totalWrites atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the journal.
func Open(cfg Config) (*Store, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	} else if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	opts := badger.DefaultOptions(path)
	opts.InMemory = cfg.InMemory
	opts.SyncWrites = cfg.SyncWrites
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	logging.Info().
		Str("path", path).
		Bool("in_memory", cfg.InMemory).
		Dur("retention", cfg.Retention).
		Msg("Journal opened")
	return &Store{db: db, config: cfg}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Append stores e, assigning ID and RecordedAt when unset. It returns the
// entry id.
func (s *Store) Append(ctx context.Context, e *Entry) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNilEntry
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if e.Reasons == nil {
		e.Reasons = []string{}
	}
	if e.Rules == nil {
		e.Rules = []string{}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	key := entryKey(e)
	err = s.db.Update(func(txn *badger.Txn) error {
		be := badger.NewEntry(key, data)
		if s.config.Retention > 0 {
			be = be.WithTTL(s.config.Retention)
		}
		return txn.SetEntry(be)
	})
	metrics.RecordJournalAppend(err)
	if err != nil {
		return "", fmt.Errorf("write journal entry: %w", err)
	}

	s.totalWrites.Add(1)
	return e.ID, nil
}

func entryKey(e *Entry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", entryPrefix, e.RecordedAt.UnixNano(), e.ID))
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	entries := []Entry{}
	if n <= 0 {
		return entries, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(append([]byte(entryPrefix), 0xFF)); it.ValidForPrefix(prefix) && len(entries) < n; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("unmarshal entry: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Summary scans the journal and aggregates it.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	if err := s.checkOpen(); err != nil {
		return Summary{}, err
	}

	sum := Summary{ByRule: make(map[string]int)}
	cards := make(map[string]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("unmarshal entry: %w", err)
			}

			sum.Total++
			cards[e.CardID] = struct{}{}
			if e.Outcome == OutcomeAppendFailed {
				sum.AppendFailures++
			}
			if e.Flagged {
				sum.Flagged++
				if len(e.Reasons) > 0 {
					sum.FlaggedWithReasons++
				}
			}
			for _, r := range e.Rules {
				sum.ByRule[r]++
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	sum.Cards = len(cards)
	sum.Explainability = 1
	if sum.Flagged > 0 {
		sum.Explainability = float64(sum.FlaggedWithReasons) / float64(sum.Flagged)
	}
	return sum, nil
}

// TotalWrites returns the number of appends since open.
func (s *Store) TotalWrites() int64 {
	return s.totalWrites.Load()
}

// Close closes the journal. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	logging.Info().Int64("writes", s.totalWrites.Load()).Msg("Journal closed")
	return nil
}
