package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/fhevm"
)

// FileStorage implements file-based ciphertext storage.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &FileStorage{baseDir: baseDir}, nil
}

func (s *FileStorage) path(handle Handle) string {
	h := handle.key()
	// Shard by first 2 chars to avoid too many files in one directory.
	return filepath.Join(s.baseDir, h[:2], h)
}

func (s *FileStorage) Store(ctx context.Context, ev *fhevm.EncryptedValue, owner common.Address) (Handle, error) {
	handle := ComputeHandle(ev.Type, ev.Data)
	path := s.path(handle)

	if rec, err := os.ReadFile(path); err == nil {
		return sameOwner(handle, rec, owner) // Already exists (dedup).
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write to a private temp file, then link it into place. Link fails
	// if another store got there first, so the first owner is kept.
	f, err := os.CreateTemp(dir, handle.key()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(encodeRecord(ev, owner))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			rec, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read file: %w", err)
			}
			return sameOwner(handle, rec, owner)
		}
		return "", fmt.Errorf("link temp file: %w", err)
	}

	return handle, nil
}

func (s *FileStorage) Load(ctx context.Context, handle Handle) (*fhevm.EncryptedValue, error) {
	ev, _, err := s.load(handle)
	return ev, err
}

func (s *FileStorage) Owner(ctx context.Context, handle Handle) (common.Address, error) {
	_, owner, err := s.load(handle)
	return owner, err
}

func (s *FileStorage) load(handle Handle) (*fhevm.EncryptedValue, common.Address, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return nil, common.Address{}, err
	}
	rec, err := os.ReadFile(s.path(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.Address{}, ErrNotFound
		}
		return nil, common.Address{}, fmt.Errorf("read file: %w", err)
	}
	return decodeRecord(rec)
}

func (s *FileStorage) Delete(ctx context.Context, handle Handle) error {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(handle)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	handle, err := ParseHandle(string(handle))
	if err != nil {
		return false, err
	}
	_, err = os.Stat(s.path(handle))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}
