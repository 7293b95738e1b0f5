// Package fhevm is a client SDK for encrypting typed values under an FHE
// network public key and decrypting them through an authenticated gateway.
//
// The package validates and normalizes caller input per encryption type,
// dispatches to one of six typed engine primitives, and wraps the result
// with the type tag and public key that produced it. Key generation and
// ciphertext algebra live in the engine (see the lattice package); the
// decryption gateway lives behind the Gateway interface (see the gateway
// package).
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package fhevm

import (
	"fmt"
	"math/big"
)

// EncryptType is the logical type of an encrypted value.
type EncryptType string

const (
	TypeUint8   EncryptType = "uint8"
	TypeUint16  EncryptType = "uint16"
	TypeUint32  EncryptType = "uint32"
	TypeUint64  EncryptType = "uint64"
	TypeBool    EncryptType = "bool"
	TypeAddress EncryptType = "address"
)

var allTypes = []EncryptType{TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeBool, TypeAddress}

// AllTypes returns every supported encryption type in declaration order.
func AllTypes() []EncryptType {
	return append([]EncryptType(nil), allTypes...)
}

// ParseEncryptType parses a type tag such as "uint16".
func ParseEncryptType(s string) (EncryptType, error) {
	t := EncryptType(s)
	if !t.Valid() {
		return "", newError(CodeValidation, fmt.Sprintf("unsupported encryption type: %q", s), nil, nil)
	}
	return t, nil
}

// Valid reports whether t is one of the supported types.
func (t EncryptType) Valid() bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeBool, TypeAddress:
		return true
	default:
		return false
	}
}

func (t EncryptType) String() string {
	return string(t)
}

// Bits returns the plaintext width of the type.
func (t EncryptType) Bits() int {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint16:
		return 16
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	case TypeAddress:
		return 160
	default:
		return 0
	}
}

// Bounds is the inclusive plaintext domain of a type. Numeric types carry
// *big.Int limits; bool carries false/true.
type Bounds struct {
	Min any
	Max any
}

// BoundsOf returns the domain of t. Address has no numeric domain and is
// validated by format instead, so ok is false for it.
func BoundsOf(t EncryptType) (b Bounds, ok bool) {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return Bounds{Min: new(big.Int), Max: maxUint(t.Bits())}, true
	case TypeBool:
		return Bounds{Min: false, Max: true}, true
	default:
		return Bounds{}, false
	}
}

// maxUint returns 2^bits - 1.
func maxUint(bits int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return m.Sub(m, big.NewInt(1))
}

// EncryptedValue is a ciphertext together with the type it encrypts and the
// public key it was produced under. Data is owned by the caller.
type EncryptedValue struct {
	Data      []byte      `json:"data"`
	Type      EncryptType `json:"type"`
	PublicKey string      `json:"publicKey"`
}

// DecryptionRequest asks for the plaintext of Ciphertext held by
// ContractAddress on behalf of UserAddress. Ciphertext is hex, with or
// without the 0x prefix.
type DecryptionRequest struct {
	ContractAddress string `json:"contractAddress"`
	UserAddress     string `json:"userAddress"`
	Ciphertext      string `json:"ciphertext"`
	Signature       string `json:"signature,omitempty"`
}

// Redacted returns a copy of r safe to log or attach to errors.
func (r DecryptionRequest) Redacted() DecryptionRequest {
	if r.Signature != "" {
		r.Signature = "[redacted]"
	}
	return r
}

// State is the lifecycle of a Client.
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
