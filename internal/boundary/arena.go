package boundary

import (
	"fmt"
	"sync"
)

// Arena tracks buffers whose ownership has crossed to the host. Every buffer
// handed out is registered here and must be released exactly once; releasing
// an unknown or already-released key is an error rather than corruption.
// Key 0 is reserved as the null handle and releasing it is a no-op.
type Arena struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64][]byte

	allocated uint64
	freed     uint64
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		entries: make(map[uint64][]byte),
	}
}

// Insert registers a buffer and returns its nonzero handle.
func (a *Arena) Insert(buf []byte) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	a.entries[a.next] = buf
	a.allocated++

	return a.next
}

// Adopt registers a buffer under a caller-chosen key, used when the key is
// an address handed to the host. Key 0 and duplicate keys are rejected.
func (a *Arena) Adopt(key uint64, buf []byte) error {
	if key == 0 {
		return fmt.Errorf("key 0 is reserved")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[key]; exists {
		return fmt.Errorf("key %d is already registered", key)
	}

	a.entries[key] = buf
	a.allocated++

	return nil
}

// Get returns the buffer for a live key.
func (a *Arena) Get(key uint64) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.entries[key]
	return buf, ok
}

// Free releases a key. Freeing the null handle is a no-op; freeing a key
// twice or freeing an unknown key returns an error.
func (a *Arena) Free(key uint64) error {
	if key == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[key]; !exists {
		return fmt.Errorf("key %d is not registered (double free?)", key)
	}

	delete(a.entries, key)
	a.freed++

	return nil
}

// Len returns the number of live buffers.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Stats returns lifetime allocation and release counts.
func (a *Arena) Stats() (allocated, freed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated, a.freed
}
