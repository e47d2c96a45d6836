// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package journal keeps a local badger log of every purchase the terminal
// processed: the decision, its reasons and whether the card append
// succeeded.
//
// Entries are JSON values under time-ordered keys, so Recent is a reverse
// prefix scan and Summary a forward one. Summary reports the share of
// flagged purchases that carry at least one reason (explainability) and
// per-rule flag counts. The card remains the source of truth for rule
// warm-up; the journal is for the operator.
package journal
