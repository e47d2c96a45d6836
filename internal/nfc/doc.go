// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

/*
Package nfc provides the contactless reader boundary used by the terminal.

The Transceiver interface is the minimal surface of a MIFARE Classic 1K
reader: detect a tag, authenticate a sector with key A, and read or write a
single 16-byte block. Everything above it (retries, reselection, the on-card
ring buffer) lives in the card package.

# Implementations

  - Simulator: an in-memory tag slot enforcing sector authentication, with
    fault injection for tests. Tag images persist through an ImageStore.
  - BreakerTransceiver: wraps any Transceiver with a sony/gobreaker circuit
    breaker so a dead reader fails fast with ErrReaderUnavailable.

# Image Stores

MemoryImageStore keeps tag images for the life of the process.
BadgerImageStore keeps them in a badger database so a simulated card keeps
its on-card history across restarts:

	store, err := nfc.OpenBadgerImageStore("/var/lib/tapguard/cards")
	if err != nil {
		return err
	}
	defer store.Close()
	sim := nfc.NewSimulator(store, nfc.DefaultKey)

# Card Presence

WaitForCard polls DetectTag through a golang.org/x/time/rate limiter and
accepts a card only after the same UID is read several times in a row.
*/
package nfc
