// Package testutil holds deterministic sources for tests and golden
// traces.
package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// UUIDSequence issues 00000000-0000-0000-0000-000000000001,
// ...-000000000002 and so on. Plug its Next into document.WithUUIDSource
// so unique ids in traces are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type UUIDSequence struct {
	mu sync.Mutex
	n  uint64
}

// NewUUIDSequence creates a sequence whose first id ends in 1.
func NewUUIDSequence() *UUIDSequence {
	return &UUIDSequence{}
}

// Next returns the next id.
func (s *UUIDSequence) Next() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return Nth(s.n)
}

// Issued returns how many ids have been issued since the last Reset.
func (s *UUIDSequence) Issued() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset restarts the sequence. After Reset, Next returns Nth(1) again.
func (s *UUIDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}

// Nth returns the n-th id of a sequence.
func Nth(n uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}
