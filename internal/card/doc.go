// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package card stores a card's recent transaction history on the card itself.

# Layout

A MIFARE Classic 1K tag has 64 blocks of 16 bytes. Blocks 4..63 minus the
sector trailers form the pool: block 4 holds the Header and the remaining
44 blocks are ring slots holding one TxRecord each. Both block kinds end in
a 16-bit big-endian checksum of their first 14 bytes; a block that fails it
is treated as absent.

# Block Access

BlockIO runs every read and write as a bounded state machine:

	authenticate -> transfer -> done
	      |             |
	      +--> reselect --> backoff --> authenticate (next attempt)

The attempt budget, backoff and reselect polling come from RetryPolicy.
Exhausting the budget returns ErrCommunication. A reader reported as
unavailable by the circuit breaker fails on the first attempt.

# Ring Buffer

Store appends into the slot at the header's write index and persists the
header every FlushEvery appends. Loading a header rolls it forward over
valid records written after its last flush, so a session that ends between
flushes does not lose records:

	store := card.NewStore(io, uid, card.StoreOptions{FlushEvery: 3})
	recent, err := store.ReadRecent(ctx, 10)
	if err != nil {
		return err // communication failure
	}
	res, err := store.Append(ctx, rec)

Amounts cross into the record format only through CentsFromAmount and
AmountFromCents.
*/
package card
