// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomtom215/tapguard/internal/card"
	"github.com/tomtom215/tapguard/internal/detection"
	"github.com/tomtom215/tapguard/internal/geo"
	"github.com/tomtom215/tapguard/internal/journal"
	"github.com/tomtom215/tapguard/internal/logging"
	"github.com/tomtom215/tapguard/internal/metrics"
	"github.com/tomtom215/tapguard/internal/nfc"
)

// ErrInvalidPurchase is returned for a purchase that cannot be recorded.
var ErrInvalidPurchase = errors.New("invalid purchase")

// Purchase outcomes recorded in metrics.
const (
	OutcomeClean        = "clean"
	OutcomeFlagged      = "flagged"
	OutcomeAppendFailed = "append_failed"
	OutcomeNoCard       = "no_card"
	OutcomeReadFailed   = "read_failed"
	OutcomeRejected     = "rejected"
)

// Config configures a Terminal.
type Config struct {
	// MerchantID, Zip and Coords describe this terminal. A purchase may
	// override each of them.
	MerchantID uint32
	Zip        string
	Coords     *geo.Point

	Key      nfc.Key
	Retry    card.RetryPolicy
	Presence nfc.PresenceConfig

	// RecentRecords is how many card records are replayed before a
	// purchase is evaluated.
	RecentRecords int
	FlushEvery    int

	// RecoverUnflushed lets a card seen for the first time recover records
	// appended after its header was last persisted.
	RecoverUnflushed bool

	// Clock defaults to time.Now.
	Clock func() time.Time
	// Sleep replaces the block retry backoff, mainly for tests.
	Sleep func(context.Context, time.Duration) error
}

// Journal records processed purchases.
type Journal interface {
	Append(ctx context.Context, e *journal.Entry) (string, error)
}

// Purchase is a purchase waiting for a card tap.
type Purchase struct {
	Amount decimal.Decimal `json:"amount"`
	// MerchantID overrides the terminal merchant.
	MerchantID *uint32 `json:"merchant_id,omitempty"`
	// Zip overrides the terminal ZIP.
	Zip string `json:"zip,omitempty"`
	// Coords overrides the terminal position.
	Coords *geo.Point `json:"coords,omitempty"`
}

// Outcome is the result of one purchase session.
type Outcome struct {
	SessionID   string                `json:"session_id"`
	CardID      string                `json:"card_id"`
	Transaction detection.Transaction `json:"transaction"`
	Decision    detection.Decision    `json:"decision"`

	// Replayed records warmed the rules; Skipped were already seen by this
	// process.
	Replayed   int `json:"replayed"`
	Skipped    int `json:"skipped"`
	Recovered  int `json:"recovered"`
	Corrupt    int `json:"corrupt"`
	Blank      int `json:"blank"`
	Unreadable int `json:"unreadable"`

	Appended    bool               `json:"appended"`
	Append      *card.AppendResult `json:"append,omitempty"`
	AppendError string             `json:"append_error,omitempty"`
	JournalID   string             `json:"journal_id,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Terminal runs purchase sessions against one reader and one rule engine.
// Sessions are serialized; rule and card state have a single owner.
type Terminal struct {
	cfg     Config
	reader  nfc.Transceiver
	engine  *detection.Engine
	journal Journal

	mu sync.Mutex
	// watermarks holds, per card, the newest records the engine has
	// already observed.
	watermarks map[string]watermark
	// stores keeps each card's working header between sessions.
	stores map[string]*card.Store
}

// watermark is the newest timestamp observed for a card and the records
// observed at exactly that second. Timestamps have one-second resolution,
// so another terminal can write a record in the same second as one already
// seen.
type watermark struct {
	ts     uint32
	atMark map[card.TxRecord]int
}

// observe advances w over records, which are observed in order.
func (w *watermark) observe(r card.TxRecord) {
	switch {
	case r.Timestamp > w.ts || w.atMark == nil:
		w.ts = r.Timestamp
		w.atMark = map[card.TxRecord]int{r: 1}
	case r.Timestamp == w.ts:
		w.atMark[r]++
	}
}

// New creates a terminal. journal may be nil.
func New(cfg Config, reader nfc.Transceiver, engine *detection.Engine, j Journal) *Terminal {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RecentRecords < 0 {
		cfg.RecentRecords = 0
	}
	return &Terminal{
		cfg:        cfg,
		reader:     reader,
		engine:     engine,
		journal:    j,
		watermarks: make(map[string]watermark),
		stores:     make(map[string]*card.Store),
	}
}

// Engine returns the terminal's rule engine.
func (t *Terminal) Engine() *detection.Engine {
	return t.engine
}

// cardStore returns the store kept for the card, creating it on first use.
func (t *Terminal) cardStore(uid nfc.UID) *card.Store {
	if store, ok := t.stores[uid.String()]; ok {
		return store
	}
	var opts []card.BlockIOOption
	if t.cfg.Sleep != nil {
		opts = append(opts, card.WithSleep(t.cfg.Sleep))
	}
	io := card.NewBlockIO(t.reader, t.cfg.Key, t.cfg.Retry, opts...)
	store := card.NewStore(io, uid, card.StoreOptions{
		FlushEvery:       t.cfg.FlushEvery,
		Clock:            t.cfg.Clock,
		RecoverUnflushed: t.cfg.RecoverUnflushed,
	})
	t.stores[uid.String()] = store
	return store
}

// readHistory starts a session on the card's store and reads up to limit
// records. A store seen before keeps its working header while the card's
// persisted header is unchanged.
func (t *Terminal) readHistory(ctx context.Context, uid nfc.UID, limit int) (card.ReadResult, *card.Store, error) {
	store := t.cardStore(uid)
	if err := store.Resume(ctx); err != nil {
		return card.ReadResult{}, store, err
	}
	recent, err := store.ReadRecent(ctx, limit)
	return recent, store, err
}

// ProcessPurchase waits for a card, rebuilds the card's rule state from its
// recent history, evaluates the purchase and appends it to the card.
//
// A flagged purchase is still appended. When the append fails the outcome
// is returned together with the error.
func (t *Terminal) ProcessPurchase(ctx context.Context, p Purchase) (*Outcome, error) {
	if p.Amount.IsNegative() {
		metrics.RecordPurchase(OutcomeRejected)
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidPurchase, p.Amount)
	}
	if _, err := card.CentsFromAmount(p.Amount); err != nil {
		metrics.RecordPurchase(OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", ErrInvalidPurchase, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ctx = logging.ContextWithNewSessionID(ctx)
	start := time.Now()

	uid, err := nfc.WaitForCard(ctx, t.reader, t.cfg.Presence)
	if err != nil {
		metrics.RecordPurchase(OutcomeNoCard)
		return nil, err
	}
	cardID := uid.String()
	log := logging.CtxWith(ctx).Str("card", cardID).Logger()

	recent, store, err := t.readHistory(ctx, uid, t.cfg.RecentRecords)
	if err != nil {
		metrics.RecordPurchase(OutcomeReadFailed)
		logging.CtxWarn(ctx).Err(err).Str("card", cardID).Msg("Card history unreadable, ask for a re-tap")
		return nil, fmt.Errorf("read card history: %w", err)
	}

	out := &Outcome{
		SessionID:  logging.SessionIDFromContext(ctx),
		CardID:     cardID,
		Recovered:  store.Recovered(),
		Corrupt:    recent.Corrupt,
		Blank:      recent.Blank,
		Unreadable: recent.Unreadable,
	}

	history, skipped := t.unseen(cardID, recent.Records)
	out.Skipped = skipped
	out.Replayed = t.engine.Warmup(cardID, history)
	metrics.RecordWarmup(out.Replayed)

	tx := t.transaction(cardID, p)
	evalStart := time.Now()
	decision := t.engine.Evaluate(&tx)
	metrics.RecordEvaluation(firedRules(decision), time.Since(evalStart))
	out.Transaction = tx
	out.Decision = decision

	rec, err := card.NewTxRecord(&tx, decision.Flagged)
	var appendErr error
	if err != nil {
		appendErr = err
	} else {
		w := t.watermarks[cardID]
		w.observe(rec)
		t.watermarks[cardID] = w

		res, err := store.Append(ctx, rec)
		appendErr = err
		// A failed header flush still leaves the record on the card.
		if res.Block != 0 {
			out.Appended = true
			out.Append = &res
		}
	}
	if appendErr != nil {
		out.AppendError = appendErr.Error()
	}

	outcome := OutcomeClean
	switch {
	case !out.Appended:
		outcome = OutcomeAppendFailed
	case decision.Flagged:
		outcome = OutcomeFlagged
	}
	metrics.RecordPurchase(outcome)
	out.Duration = time.Since(start)

	t.record(ctx, out)

	ev := log.Info()
	if appendErr != nil {
		ev = log.Warn().Err(appendErr)
	}
	ev.Bool("flagged", decision.Flagged).
		Strs("reasons", decision.Reasons).
		Str("amount", tx.Amount.String()).
		Int("replayed", out.Replayed).
		Bool("appended", out.Appended).
		Dur("duration", out.Duration).
		Msg("Purchase processed")

	if appendErr != nil {
		return out, fmt.Errorf("append purchase: %w", appendErr)
	}
	return out, nil
}

// unseen returns the records the engine has not observed yet, oldest
// first, and how many were skipped. It advances the card's watermark.
//
// A record is skipped when it is older than the watermark, or when it
// matches a record already observed in the watermark's second.
func (t *Terminal) unseen(cardID string, newestFirst []card.TxRecord) ([]detection.HistoryRecord, int) {
	w := t.watermarks[cardID]
	mark := w.ts
	known := make(map[card.TxRecord]int, len(w.atMark))
	for r, n := range w.atMark {
		known[r] = n
	}

	history := make([]detection.HistoryRecord, 0, len(newestFirst))
	skipped := 0
	for i := len(newestFirst) - 1; i >= 0; i-- {
		r := newestFirst[i]
		if r.Timestamp < mark || (r.Timestamp == mark && known[r] > 0) {
			known[r]--
			skipped++
			continue
		}
		w.observe(r)
		history = append(history, r.HistoryRecord())
	}
	t.watermarks[cardID] = w
	return history, skipped
}

func (t *Terminal) transaction(cardID string, p Purchase) detection.Transaction {
	tx := detection.Transaction{
		Timestamp:  t.cfg.Clock().Unix(),
		MerchantID: t.cfg.MerchantID,
		CardID:     cardID,
		Amount:     p.Amount,
		Zip:        t.cfg.Zip,
		Coords:     t.cfg.Coords,
	}
	if p.MerchantID != nil {
		tx.MerchantID = *p.MerchantID
	}
	if p.Zip != "" {
		tx.Zip = p.Zip
		tx.Coords = nil
	}
	if p.Coords != nil {
		tx.Coords = p.Coords
	}
	return tx
}

func (t *Terminal) record(ctx context.Context, out *Outcome) {
	if t.journal == nil {
		return
	}
	e := &journal.Entry{
		CardID:      out.CardID,
		Timestamp:   out.Transaction.Timestamp,
		MerchantID:  out.Transaction.MerchantID,
		Amount:      out.Transaction.Amount,
		Zip:         out.Transaction.Zip,
		Flagged:     out.Decision.Flagged,
		Reasons:     out.Decision.Reasons,
		Rules:       firedRules(out.Decision),
		Outcome:     journal.OutcomeRecorded,
		AppendError: out.AppendError,
		Replayed:    out.Replayed,
		DurationNs:  out.Duration.Nanoseconds(),
	}
	if out.Append != nil {
		e.Slot = out.Append.Slot
	}
	if !out.Appended {
		e.Outcome = journal.OutcomeAppendFailed
	}
	id, err := t.journal.Append(ctx, e)
	if err != nil {
		logging.CtxErr(ctx, err).Msg("Journal append failed")
		return
	}
	out.JournalID = id
}

func firedRules(d detection.Decision) []string {
	rules := make([]string, 0, len(d.Reasons))
	for _, v := range d.Verdicts {
		if v.Flag {
			rules = append(rules, string(v.Rule))
		}
	}
	return rules
}
