package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/fhevm"
)

// MemoryStorage implements in-memory ciphertext storage.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Handle][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, ev *fhevm.EncryptedValue, owner common.Address) (Handle, error) {
	handle := ComputeHandle(ev.Type, ev.Data)
	rec := encodeRecord(ev, owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.data[handle]; exists {
		return sameOwner(handle, existing, owner) // Dedup by content hash.
	}

	if s.size+int64(len(rec)) > s.capacity {
		return "", ErrStorageFull
	}

	s.data[handle] = rec
	s.size += int64(len(rec))

	return handle, nil
}

func (s *MemoryStorage) Load(ctx context.Context, handle Handle) (*fhevm.EncryptedValue, error) {
	ev, _, err := s.load(handle)
	return ev, err
}

func (s *MemoryStorage) Owner(ctx context.Context, handle Handle) (common.Address, error) {
	_, owner, err := s.load(handle)
	return owner, err
}

func (s *MemoryStorage) load(handle Handle) (*fhevm.EncryptedValue, common.Address, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return nil, common.Address{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[handle]
	if !exists {
		return nil, common.Address{}, ErrNotFound
	}

	return decodeRecord(rec)
}

func (s *MemoryStorage) Delete(ctx context.Context, handle Handle) error {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[handle]
	if !exists {
		return ErrNotFound
	}

	s.size -= int64(len(rec))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[handle]
	return exists, nil
}

// Size returns the number of bytes held.
func (s *MemoryStorage) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[Handle][]byte)
	s.size = 0
	return nil
}
