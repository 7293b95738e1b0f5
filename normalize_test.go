// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		typ  EncryptType
		want any
	}{
		{"uint8 string", "42", TypeUint8, uint8(42)},
		{"uint8 spaces", " 255 ", TypeUint8, uint8(255)},
		{"uint8 number", 7, TypeUint8, uint8(7)},
		{"uint16 json number", json.Number("65535"), TypeUint16, uint16(65535)},
		{"uint32 float", float64(4294967295), TypeUint32, uint32(4294967295)},
		{"bool true", true, TypeBool, true},
		{"bool string", "TRUE", TypeBool, true},
		{"bool string false", " false ", TypeBool, false},
		{"address", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", TypeAddress, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.typ)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.True(t, IsValid(got, tt.typ))
		})
	}
}

func TestNormalizeUint64(t *testing.T) {
	for _, raw := range []any{
		"18446744073709551615",
		"0xffffffffffffffff",
		json.Number("18446744073709551615"),
		new(big.Int).SetUint64(18446744073709551615),
	} {
		got, err := Normalize(raw, TypeUint64)
		require.NoError(t, err, raw)
		require.Equal(t, "18446744073709551615", got.(*big.Int).String())
	}

	// The input big.Int is not aliased.
	in := big.NewInt(5)
	got, err := Normalize(in, TypeUint64)
	require.NoError(t, err)
	got.(*big.Int).SetInt64(6)
	require.EqualValues(t, 5, in.Int64())
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		typ  EncryptType
	}{
		{"uint8 over", "256", TypeUint8},
		{"uint8 negative", "-1", TypeUint8},
		{"uint8 empty", "", TypeUint8},
		{"uint8 plus", "+1", TypeUint8},
		{"uint8 hex", "0x10", TypeUint8},
		{"uint8 word", "ten", TypeUint8},
		{"uint8 fraction", 1.5, TypeUint8},
		{"uint16 over", 65536, TypeUint16},
		{"uint64 over", "18446744073709551616", TypeUint64},
		{"uint64 bad hex", "0x", TypeUint64},
		{"bool yes", "yes", TypeBool},
		{"bool number", 1, TypeBool},
		{"address short", "0x1234", TypeAddress},
		{"address number", 1, TypeAddress},
		{"unknown type", "1", EncryptType("uint128")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tt.typ)
			require.ErrorIs(t, err, ErrValidation)

			var e *Error
			require.ErrorAs(t, err, &e)
			details, ok := e.Details.(ValueDetails)
			require.True(t, ok)
			require.Equal(t, tt.typ, details.Type)
		})
	}
}

func TestNormalizeJSON(t *testing.T) {
	got, err := NormalizeJSON(json.RawMessage(`18446744073709551615`), TypeUint64)
	require.NoError(t, err)
	require.Equal(t, "18446744073709551615", got.(*big.Int).String())

	got, err = NormalizeJSON(json.RawMessage(`"12"`), TypeUint8)
	require.NoError(t, err)
	require.Equal(t, uint8(12), got)

	got, err = NormalizeJSON(json.RawMessage(`true`), TypeBool)
	require.NoError(t, err)
	require.Equal(t, true, got)

	_, err = NormalizeJSON(json.RawMessage(`{`), TypeUint8)
	require.ErrorIs(t, err, ErrValidation)
}
