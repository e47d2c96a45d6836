// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package detection provides the streaming fraud rules evaluated at the
// terminal for every card tap.
//
// Detection Architecture:
//
//	Transaction -> Engine -> [merchant_window, card_window, amount_cap,
//	                          card_ewma, impossible_travel] -> Decision
//
// Every rule runs on every transaction, in that fixed order, whether or not
// an earlier rule fired: each rule's state must advance on every tap. The
// decision is the OR of the rule flags plus one reason tag per firing rule.
//
// Supported Detection Rules:
//   - Merchant Window: too many distinct cards at one merchant in a bucket
//   - Card Window: one card at too many distinct merchants in a bucket
//   - Amount Cap: static ceiling in currency units
//   - Card EWMA: per-card z-score of log(amount) against an exponentially
//     weighted mean and variance, silent during warm-up
//   - Impossible Travel: implied speed between consecutive located taps
//
// Warm-up:
// The terminal keeps no history of its own. Before evaluating a tap it reads
// the card's recent records and replays them through Engine.Warmup, oldest
// first, which rebuilds the per-card state. Replayed records carry no
// coordinates.
//
// Rules and the engine hold plain maps without locks. One goroutine owns an
// Engine; the terminal worker serializes access.
package detection
