// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package terminal runs point-of-sale purchase sessions.

A session waits for a stable card, replays the card's recent records
(oldest first) into the rule engine, evaluates the purchase, appends it to
the card with the any-rule-fired flag and journals the outcome:

	term := terminal.New(cfg, reader, engine, journal)
	out, err := term.ProcessPurchase(ctx, terminal.Purchase{Amount: amount})
	if out != nil && out.Decision.Flagged {
		// decline or step up
	}

Records this process has already evaluated are not replayed again: each
card keeps a watermark of the newest second the engine has seen and the
records seen in that second. The terminal also keeps each card's store, so
appends not yet reflected in the card header stay visible to its next
session as long as nobody else rewrote the header.

Worker queues purchases from the admin API and hands them to the terminal
one at a time under the supervisor tree.
*/
package terminal
