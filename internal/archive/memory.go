package archive

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

// MemoryArchive is an in-memory implementation of the Archive interface,
// useful for testing. It is safe for concurrent use.
type MemoryArchive struct {
	payloads map[string][]byte
	events   map[string][]*mirror.ArchiveEvent // domain -> events
	mu       sync.RWMutex
}

// NewMemoryArchive creates a new in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		payloads: make(map[string][]byte),
		events:   make(map[string][]*mirror.ArchiveEvent),
	}
}

// PutPayload stores a payload under its content hash.
func (m *MemoryArchive) PutPayload(hash string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[hash] = data
	return nil
}

// GetPayload retrieves a payload by content hash.
func (m *MemoryArchive) GetPayload(hash string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.payloads[hash]
	if !ok {
		return fmt.Errorf("payload not found: %s", hash)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// AppendEvent records an event under its domain.
func (m *MemoryArchive) AppendEvent(domain string, e *mirror.ArchiveEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[domain] = append(m.events[domain], e)
	return nil
}

// Events returns the recorded events for a domain, in append order.
func (m *MemoryArchive) Events(domain string) []*mirror.ArchiveEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*mirror.ArchiveEvent(nil), m.events[domain]...)
}

// HasPayload reports whether a payload with the given hash is stored.
func (m *MemoryArchive) HasPayload(hash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.payloads[hash]
	return ok
}

// ValidateSetup always succeeds for in-memory archive.
func (m *MemoryArchive) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryArchive implements the Archive interface
var _ mirror.Archive = (*MemoryArchive)(nil)
