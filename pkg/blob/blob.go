// Package blob implements the content-addressed, refcounted blob store:
// values too large to inline in a row's fixed part are hashed and stored
// once, shared across every row (and every table) that references them.
package blob

import (
	"sync"

	"lukechampine.com/blake3"

	"github.com/ridgedb/ridge/pkg/errkind"
)

// Threshold is the byte length above which a variable-length value is
// stored in the blob store rather than inline in granules, per spec §3.
const Threshold = 1024

// HashSize is the width of a blob's content-address key: BLAKE3-256.
const HashSize = 32

// Hash is a 32-byte BLAKE3 content address.
type Hash [HashSize]byte

// Sum computes the content address of a byte slice.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

type entry struct {
	bytes    []byte
	refcount int64
}

// Store is a process-wide, refcounted map from content hash to bytes. It is
// shared globally across tables (spec §5: "blobs shared globally"), unlike
// pages, which are never shared across tables.
type Store struct {
	mu      sync.RWMutex
	entries map[Hash]*entry
}

// New returns an empty blob store.
func New() *Store {
	return &Store{entries: make(map[Hash]*entry)}
}

// Put inserts data under its content hash, creating the entry with
// refcount 1 if new or incrementing the refcount of an existing identical
// blob. It returns the hash to store inline in the row's fixed part, and
// the refcount after this Put, so a caller rolling back a failed insert
// knows whether it owns the only reference.
func (s *Store) Put(data []byte) (Hash, int64) {
	h := Sum(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.entries[h] = &entry{bytes: cp, refcount: 1}
		return h, 1
	}
	e.refcount++
	return h, e.refcount
}

// Get returns the bytes for a hash, or ErrBlobNotFound.
func (s *Store) Get(h Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[h]
	if !ok {
		return nil, errkind.ErrBlobNotFound
	}
	return e.bytes, nil
}

// Inc increments a hash's refcount, e.g. when a second row independently
// comes to reference an already-stored blob (rather than via Put, which
// implies the caller has the bytes in hand).
func (s *Store) Inc(h Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok {
		return errkind.ErrBlobNotFound
	}
	e.refcount++
	return nil
}

// Dec decrements a hash's refcount. A refcount that reaches zero makes the
// blob reclaimable but does not free it: only Reclaim deletes entries
// whose refcount is zero, and nothing in the datastore calls it.
func (s *Store) Dec(h Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok {
		return errkind.ErrBlobNotFound
	}
	e.refcount--
	return nil
}

// Refcount returns the current refcount for a hash, or 0 if absent.
func (s *Store) Refcount(h Hash) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[h]
	if !ok {
		return 0
	}
	return e.refcount
}

// Stats returns the number of distinct blobs currently stored and their
// total byte size, for diagnostics and metrics.
func (s *Store) Stats() (count int, totalBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		count++
		totalBytes += int64(len(e.bytes))
	}
	return count, totalBytes
}

// Reclaim deletes every entry whose refcount has fallen to zero or below,
// returning the number reclaimed.
func (s *Store) Reclaim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for h, e := range s.entries {
		if e.refcount <= 0 {
			delete(s.entries, h)
			n++
		}
	}
	return n
}
