// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FormatEncryptedValue renders ciphertext bytes as lowercase 0x hex.
func FormatEncryptedValue(ev *EncryptedValue) string {
	return hexutil.Encode(ev.Data)
}

// ParseEncryptedValue is the inverse of FormatEncryptedValue. The 0x prefix
// is optional; the digits must be of even length.
func ParseEncryptedValue(hexString string, t EncryptType, publicKey string) (*EncryptedValue, error) {
	data, err := DecodeHex(hexString)
	if err != nil {
		return nil, err
	}
	return &EncryptedValue{Data: data, Type: t, PublicKey: publicKey}, nil
}

// DecodeHex decodes hex with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, newError(CodeValidation, "invalid hex string", s, err)
	}
	return data, nil
}

// ToContractInput returns the ciphertext bytes to pass as a contract argument.
func ToContractInput(ev *EncryptedValue) []byte {
	return ev.Data
}

// FormatDecryptedValue converts a decrypted plaintext into its display form:
// bool for bool, a 0x address for address, uint64 for uint8/16/32 and a
// decimal string for uint64.
func FormatDecryptedValue(v *big.Int, t EncryptType) any {
	switch t {
	case TypeBool:
		return v.Sign() != 0
	case TypeAddress:
		return fmt.Sprintf("0x%040x", v)
	case TypeUint8, TypeUint16, TypeUint32:
		return v.Uint64()
	default:
		return v.String()
	}
}
