// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// SecretKey decrypts ciphertexts. It never leaves the process that
// generated it except through MarshalBinary.
type SecretKey struct {
	sk *rlwe.SecretKey
}

// PublicKey lets anyone encrypt without the secret key.
type PublicKey struct {
	pk *rlwe.PublicKey
}

// KeyGenerator generates key pairs for a parameter set.
type KeyGenerator struct {
	params Parameters
	kgen   *rlwe.KeyGenerator
}

// NewKeyGenerator creates a new key generator.
func NewKeyGenerator(params Parameters) *KeyGenerator {
	return &KeyGenerator{
		params: params,
		kgen:   rlwe.NewKeyGenerator(params.rlwe),
	}
}

// GenSecretKey generates a new secret key.
func (kg *KeyGenerator) GenSecretKey() *SecretKey {
	return &SecretKey{sk: kg.kgen.GenSecretKeyNew()}
}

// GenPublicKey derives the public key of sk.
func (kg *KeyGenerator) GenPublicKey(sk *SecretKey) *PublicKey {
	return &PublicKey{pk: kg.kgen.GenPublicKeyNew(sk.sk)}
}

// GenKeyPair generates a secret key and its public key.
func (kg *KeyGenerator) GenKeyPair() (*SecretKey, *PublicKey) {
	sk := kg.GenSecretKey()
	return sk, kg.GenPublicKey(sk)
}

// MarshalBinary serializes the secret key.
func (sk *SecretKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sk.sk); err != nil {
		return nil, fmt.Errorf("serialize secret key: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the secret key.
func (sk *SecretKey) UnmarshalBinary(data []byte) error {
	var key rlwe.SecretKey
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&key); err != nil {
		return fmt.Errorf("deserialize secret key: %w", err)
	}
	sk.sk = &key
	return nil
}

// MarshalBinary serializes the public key.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pk.pk); err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the public key.
func (pk *PublicKey) UnmarshalBinary(data []byte) error {
	var key rlwe.PublicKey
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&key); err != nil {
		return fmt.Errorf("deserialize public key: %w", err)
	}
	pk.pk = &key
	return nil
}

// Hex returns the 0x hex encoding of the public key.
func (pk *PublicKey) Hex() (string, error) {
	data, err := pk.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(data), nil
}

// PublicKeyFromHex parses the output of PublicKey.Hex.
func PublicKeyFromHex(s string) (*PublicKey, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	pk := new(PublicKey)
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return pk, nil
}

const (
	secretKeyFile = "secret.key"
	publicKeyFile = "public.key"
)

// LoadOrGenerateKeys reads a key pair from dir, generating and saving a new
// one if dir holds none.
func LoadOrGenerateKeys(params Parameters, dir string) (*SecretKey, *PublicKey, error) {
	skPath := filepath.Join(dir, secretKeyFile)
	pkPath := filepath.Join(dir, publicKeyFile)

	skData, skErr := os.ReadFile(skPath)
	pkData, pkErr := os.ReadFile(pkPath)
	if skErr == nil && pkErr == nil {
		sk, pk := new(SecretKey), new(PublicKey)
		if err := sk.UnmarshalBinary(skData); err != nil {
			return nil, nil, err
		}
		if err := pk.UnmarshalBinary(pkData); err != nil {
			return nil, nil, err
		}
		return sk, pk, nil
	}
	if !os.IsNotExist(skErr) && skErr != nil {
		return nil, nil, fmt.Errorf("read secret key: %w", skErr)
	}

	sk, pk := NewKeyGenerator(params).GenKeyPair()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("create key dir: %w", err)
	}
	skData, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	pkData, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	if err := writeFileAtomic(skPath, skData, 0600); err != nil {
		return nil, nil, err
	}
	if err := writeFileAtomic(pkPath, pkData, 0644); err != nil {
		return nil, nil, err
	}
	return sk, pk, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, perm)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
