// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

package nfc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/tapguard/internal/logging"
)

// Blocks is the number of blocks on a MIFARE Classic 1K tag.
const Blocks = 64

// imageKeyPrefix namespaces card images in the badger keyspace.
const imageKeyPrefix = "card:"

// defaultAccessBits are the factory access conditions (transport config).
var defaultAccessBits = [4]byte{0xFF, 0x07, 0x80, 0x69}

// Image is the full memory of a simulated 1K tag.
type Image [Blocks][BlockSize]byte

// NewImage returns a blank tag image for uid: manufacturer block set, data
// blocks zeroed and every trailer holding key as key A and key B.
func NewImage(uid UID, key Key) *Image {
	img := &Image{}
	n := copy(img[0][:], uid)
	if n == 4 {
		img[0][4] = uid[0] ^ uid[1] ^ uid[2] ^ uid[3] // BCC
	}
	for b := byte(3); b < Blocks; b += 4 {
		copy(img[b][0:6], key[:])
		copy(img[b][6:10], defaultAccessBits[:])
		copy(img[b][10:16], key[:])
	}
	return img
}

// KeyA returns key A of the sector holding block.
func (img *Image) KeyA(block byte) Key {
	var k Key
	copy(k[:], img[SectorTrailer(block)][0:6])
	return k
}

// ImageStore persists simulated tag images between runs.
type ImageStore interface {
	// Load returns the image for uid. ok is false when none is stored.
	Load(uid UID) (img *Image, ok bool, err error)
	Save(uid UID, img *Image) error
}

// MemoryImageStore keeps images for the life of the process.
type MemoryImageStore struct {
	mu     sync.Mutex
	images map[string]Image
}

// NewMemoryImageStore creates an empty in-memory store.
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{images: make(map[string]Image)}
}

// Load implements ImageStore.
func (m *MemoryImageStore) Load(uid UID) (*Image, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[uid.String()]
	if !ok {
		return nil, false, nil
	}
	return &img, true, nil
}

// Save implements ImageStore.
func (m *MemoryImageStore) Save(uid UID, img *Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[uid.String()] = *img
	return nil
}

// BadgerImageStore keeps images in a badger database so a simulated card
// keeps its history across terminal restarts.
type BadgerImageStore struct {
	db *badger.DB
}

// NewBadgerImageStore wraps an open database. The caller owns db.
func NewBadgerImageStore(db *badger.DB) *BadgerImageStore {
	return &BadgerImageStore{db: db}
}

// OpenBadgerImageStore opens (or creates) a database at path. An empty path
// opens an in-memory database.
func OpenBadgerImageStore(path string) (*BadgerImageStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open card image store: %w", err)
	}
	logging.Info().Str("path", path).Msg("Card image store opened")
	return &BadgerImageStore{db: db}, nil
}

// Load implements ImageStore.
func (s *BadgerImageStore) Load(uid UID) (*Image, bool, error) {
	var img Image
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(imageKeyPrefix + uid.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != Blocks*BlockSize {
				return fmt.Errorf("card image for %s has %d bytes, want %d", uid, len(val), Blocks*BlockSize)
			}
			for b := range img {
				copy(img[b][:], val[b*BlockSize:(b+1)*BlockSize])
			}
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load card image: %w", err)
	}
	return &img, true, nil
}

// Save implements ImageStore.
func (s *BadgerImageStore) Save(uid UID, img *Image) error {
	buf := make([]byte, 0, Blocks*BlockSize)
	for b := range img {
		buf = append(buf, img[b][:]...)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(imageKeyPrefix+uid.String()), buf)
	})
	if err != nil {
		return fmt.Errorf("save card image: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerImageStore) Close() error {
	return s.db.Close()
}
