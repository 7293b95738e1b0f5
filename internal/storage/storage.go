// Package storage keeps encrypted values addressed by content handle so
// that callers can pass a short handle around instead of the ciphertext.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/fhevm"
)

// Common errors.
var (
	ErrNotFound      = errors.New("ciphertext not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid ciphertext handle")
	ErrCorrupt       = errors.New("corrupt ciphertext record")
	ErrOwned         = errors.New("ciphertext is registered to another owner")
)

// Handle uniquely identifies a stored ciphertext: the 0x hex keccak256 of
// its type tag and bytes.
type Handle string

// ComputeHandle generates the handle of a typed ciphertext.
func ComputeHandle(t fhevm.EncryptType, data []byte) Handle {
	return Handle(crypto.Keccak256Hash([]byte(t), []byte{0}, data).Hex())
}

// ParseHandle validates s as a handle. The 0x prefix is optional and hex
// case is ignored.
func ParseHandle(s string) (Handle, error) {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	return Handle(s), nil
}

// key is the handle without its prefix, used for file and redis names.
func (h Handle) key() string {
	return strings.TrimPrefix(string(h), "0x")
}

// Storage defines the interface for ciphertext storage. Every ciphertext
// is stored for an owner, the only address allowed to decrypt it.
type Storage interface {
	// Store saves an encrypted value for owner and returns its handle.
	// Storing the same value again for the same owner returns the same
	// handle; for a different owner it fails with ErrOwned and the first
	// owner is kept.
	Store(ctx context.Context, ev *fhevm.EncryptedValue, owner common.Address) (Handle, error)
	// Load retrieves an encrypted value by handle. The public key is not
	// stored and is left empty.
	Load(ctx context.Context, handle Handle) (*fhevm.EncryptedValue, error)
	// Owner returns the address the ciphertext was stored for.
	Owner(ctx context.Context, handle Handle) (common.Address, error)
	// Delete removes a ciphertext.
	Delete(ctx context.Context, handle Handle) error
	// Exists checks if a ciphertext exists.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close closes the storage.
	Close() error
}

// encodeRecord lays a value out as owner | len(type) | type | data.
func encodeRecord(ev *fhevm.EncryptedValue, owner common.Address) []byte {
	rec := make([]byte, 0, common.AddressLength+1+len(ev.Type)+len(ev.Data))
	rec = append(rec, owner.Bytes()...)
	rec = append(rec, byte(len(ev.Type)))
	rec = append(rec, ev.Type...)
	return append(rec, ev.Data...)
}

func decodeRecord(rec []byte) (*fhevm.EncryptedValue, common.Address, error) {
	if len(rec) <= common.AddressLength {
		return nil, common.Address{}, ErrCorrupt
	}
	owner := common.BytesToAddress(rec[:common.AddressLength])
	rec = rec[common.AddressLength:]
	if len(rec) < 1+int(rec[0]) {
		return nil, common.Address{}, ErrCorrupt
	}
	n := int(rec[0])
	t := fhevm.EncryptType(rec[1 : 1+n])
	if !t.Valid() {
		return nil, common.Address{}, fmt.Errorf("%w: type %q", ErrCorrupt, string(t))
	}
	return &fhevm.EncryptedValue{
		Type: t,
		Data: append([]byte(nil), rec[1+n:]...),
	}, owner, nil
}

// sameOwner resolves a store that found rec already under handle.
func sameOwner(handle Handle, rec []byte, owner common.Address) (Handle, error) {
	_, existing, err := decodeRecord(rec)
	if err != nil {
		return "", err
	}
	if existing != owner {
		return "", ErrOwned
	}
	return handle, nil
}
