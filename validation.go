// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"math"
	"math/big"
	"net/url"
	"regexp"

	"github.com/holiman/uint256"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a 0x-prefixed 40 hex digit address.
// Case is not checked.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// IsValidEncryptType reports whether s names a supported encryption type.
func IsValidEncryptType(s string) bool {
	return EncryptType(s).Valid()
}

// IsValid reports whether value may be encrypted as t. It checks both the
// representation kind and the domain and never panics.
//
// Numbers are Go integer kinds or floats without a fractional part. uint64
// additionally accepts *big.Int and *uint256.Int. bool accepts
// only a Go bool and address only a string.
func IsValid(value any, t EncryptType) bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32:
		n, ok := numberValue(value)
		return ok && inRange(n, t.Bits())
	case TypeUint64:
		n, ok := numberValue(value)
		if !ok {
			n, ok = largeValue(value)
		}
		return ok && inRange(n, 64)
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeAddress:
		s, ok := value.(string)
		return ok && IsValidAddress(s)
	default:
		return false
	}
}

func inRange(n *big.Int, bits int) bool {
	return n.Sign() >= 0 && n.BitLen() <= bits
}

// numberValue converts a number kind to a big.Int. Floats must be finite and
// integral.
func numberValue(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float32:
		return floatValue(float64(n))
	case float64:
		return floatValue(n)
	default:
		return nil, false
	}
}

func floatValue(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return nil, false
	}
	i, _ := big.NewFloat(f).Int(nil)
	return i, true
}

// largeValue converts an arbitrary-precision integer kind to a big.Int.
func largeValue(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return n, true
	case *uint256.Int:
		if n == nil {
			return nil, false
		}
		return n.ToBig(), true
	default:
		return nil, false
	}
}

// IsValidRPCURL accepts http, https, ws and wss URLs.
func IsValidRPCURL(s string) bool {
	return hasScheme(s, "http", "https", "ws", "wss")
}

// IsValidGatewayURL accepts http, https, ws and wss URLs.
func IsValidGatewayURL(s string) bool {
	return hasScheme(s, "http", "https", "ws", "wss")
}

// IsValidChainID reports whether id is a usable chain id.
func IsValidChainID(id uint64) bool {
	return id > 0
}

func hasScheme(s string, schemes ...string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return true
		}
	}
	return false
}
