package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// MemoryStore is an in-memory content-addressed store for tests. CIDs are
// derived from the payload hash, so pinning identical bytes is naturally
// idempotent.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Pin(ctx context.Context, payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	cid := "mem-" + hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.objects[cid] = stored

	return cid, nil
}

// Get returns a pinned payload by CID, for test assertions.
func (s *MemoryStore) Get(cid string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.objects[cid]
	return payload, ok
}
