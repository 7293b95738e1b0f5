// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Normalize coerces raw caller input into the canonical value for t:
//
//	uint8, uint16, uint32 -> uint8, uint16, uint32
//	uint64                -> *big.Int
//	bool                  -> bool
//	address               -> string (unchanged)
//
// raw may be a string, a Go number, a bool, a json.Number or, for uint64, a
// *big.Int. Unparseable input and out of range values fail with a
// VALIDATION_FAILED error.
func Normalize(raw any, t EncryptType) (any, error) {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		n, err := integerInput(raw, t)
		if err != nil {
			return nil, err
		}
		if !inRange(n, t.Bits()) {
			return nil, validationError(fmt.Sprintf("value out of range for type %s", t), raw, t)
		}
		return canonicalInteger(n, t), nil
	case TypeBool:
		switch r := raw.(type) {
		case bool:
			return r, nil
		case string:
			s := strings.TrimSpace(r)
			switch {
			case strings.EqualFold(s, "true"):
				return true, nil
			case strings.EqualFold(s, "false"):
				return false, nil
			}
		}
		return nil, validationError("invalid boolean: expected true or false", raw, t)
	case TypeAddress:
		s, ok := raw.(string)
		if !ok || !IsValidAddress(s) {
			return nil, validationError("invalid address: expected 0x followed by 40 hex digits", raw, t)
		}
		return s, nil
	default:
		return nil, validationError(fmt.Sprintf("unsupported encryption type: %q", string(t)), raw, t)
	}
}

// NormalizeJSON decodes a JSON scalar and normalizes it. Numbers are kept
// as json.Number so that uint64 values above 2^53 are not rounded.
func NormalizeJSON(raw json.RawMessage, t EncryptType) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, validationError("invalid JSON value", string(raw), t)
	}
	return Normalize(v, t)
}

func integerInput(raw any, t EncryptType) (*big.Int, error) {
	switch r := raw.(type) {
	case string:
		return parseInteger(r, t)
	case json.Number:
		return parseInteger(r.String(), t)
	}
	if n, ok := numberValue(raw); ok {
		return n, nil
	}
	if t == TypeUint64 {
		if n, ok := largeValue(raw); ok {
			return new(big.Int).Set(n), nil
		}
	}
	return nil, validationError(fmt.Sprintf("invalid number for type %s", t), raw, t)
}

// parseInteger parses a decimal string. uint64 also accepts 0x hex, which
// keeps full precision above 2^53.
func parseInteger(s string, t EncryptType) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if t == TypeUint64 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		base = 16
		digits = s[2:]
	}
	if digits == "" || strings.HasPrefix(digits, "+") {
		return nil, validationError("invalid number", s, t)
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, validationError("invalid number", s, t)
	}
	return n, nil
}

func canonicalInteger(n *big.Int, t EncryptType) any {
	switch t {
	case TypeUint8:
		return uint8(n.Uint64())
	case TypeUint16:
		return uint16(n.Uint64())
	case TypeUint32:
		return uint32(n.Uint64())
	default:
		return n
	}
}

func validationError(msg string, value any, t EncryptType) *Error {
	return newError(CodeValidation, msg, ValueDetails{Value: value, Type: t}, nil)
}
