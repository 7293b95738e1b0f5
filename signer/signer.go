// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package signer provides Ethereum account signers and providers for
// authorizing gateway decryption.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the length of an [R || S || V] signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid private key")
)

// LocalSigner signs with an in-memory secp256k1 key.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner wraps key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// FromHex parses a hex private key, with or without 0x.
func FromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewLocalSigner(key), nil
}

// Generate creates a signer with a fresh random key.
func Generate() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address returns the account address of the key.
func (s *LocalSigner) Address(context.Context) (common.Address, error) {
	return s.addr, nil
}

// SignMessage returns an EIP-191 personal signature with V in {27, 28}.
func (s *LocalSigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// PrivateKeyHex returns the 0x hex private key.
func (s *LocalSigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

// RecoverAddress returns the account that produced the EIP-191 signature
// sig over msg. V may be 0/1 or 27/28.
func RecoverAddress(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	s := make([]byte, SignatureLength)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over msg was produced by addr.
func Verify(addr common.Address, msg, sig []byte) bool {
	got, err := RecoverAddress(msg, sig)
	return err == nil && got == addr
}

// DecryptionMessage is the message a user signs to authorize decryption of
// ciphertext held by contract. Addresses and hex are lowercased so the
// message does not depend on checksum casing.
func DecryptionMessage(contract, user, ciphertext string) []byte {
	return []byte(fmt.Sprintf(
		"fhevm decryption request\ncontract: %s\nuser: %s\nciphertext: %s",
		strings.ToLower(contract), strings.ToLower(user), ciphertextDigest(ciphertext),
	))
}

// EncryptionMessage is the message a user signs to have the gateway
// encrypt a value of type t on their behalf. The user becomes the owner of
// the resulting ciphertext.
func EncryptionMessage(user, t string) []byte {
	return []byte(fmt.Sprintf(
		"fhevm encryption request\nuser: %s\ntype: %s",
		strings.ToLower(user), strings.ToLower(t),
	))
}

// RegistrationMessage is the message a user signs to claim ownership of a
// ciphertext they encrypted themselves.
func RegistrationMessage(user, ciphertext string) []byte {
	return []byte(fmt.Sprintf(
		"fhevm ciphertext registration\nuser: %s\nciphertext: %s",
		strings.ToLower(user), ciphertextDigest(ciphertext),
	))
}

func ciphertextDigest(ciphertext string) string {
	ct := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(ciphertext, "0x"), "0X"))
	return crypto.Keccak256Hash([]byte(ct)).Hex()
}

// AuthMessage is the message a signer signs to open a gateway session.
func AuthMessage(nonce string) []byte {
	return []byte("fhevm gateway authentication\nnonce: " + nonce)
}
