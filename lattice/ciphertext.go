// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/lattice/v7/core/rlwe"

	"github.com/luxfi/fhevm"
)

// FheUintType is the type tag carried in a serialized ciphertext.
type FheUintType uint8

const (
	FheBool    FheUintType = 0
	FheUint8   FheUintType = 2
	FheUint16  FheUintType = 3
	FheUint32  FheUintType = 4
	FheUint64  FheUintType = 5
	FheUint160 FheUintType = 7 // For Ethereum addresses
)

// NumBits returns the number of encrypted bits for the type.
func (t FheUintType) NumBits() int {
	switch t {
	case FheBool:
		return 1
	case FheUint8:
		return 8
	case FheUint16:
		return 16
	case FheUint32:
		return 32
	case FheUint64:
		return 64
	case FheUint160:
		return 160
	default:
		return 0
	}
}

func (t FheUintType) String() string {
	switch t {
	case FheBool:
		return "ebool"
	case FheUint8:
		return "euint8"
	case FheUint16:
		return "euint16"
	case FheUint32:
		return "euint32"
	case FheUint64:
		return "euint64"
	case FheUint160:
		return "eaddress"
	default:
		return fmt.Sprintf("FheUintType(%d)", uint8(t))
	}
}

var fheTypes = map[fhevm.EncryptType]FheUintType{
	fhevm.TypeBool:    FheBool,
	fhevm.TypeUint8:   FheUint8,
	fhevm.TypeUint16:  FheUint16,
	fhevm.TypeUint32:  FheUint32,
	fhevm.TypeUint64:  FheUint64,
	fhevm.TypeAddress: FheUint160,
}

// TypeOf maps an fhevm encryption type to its ciphertext tag.
func TypeOf(t fhevm.EncryptType) (FheUintType, bool) {
	ft, ok := fheTypes[t]
	return ft, ok
}

// EncryptType maps a ciphertext tag back to its fhevm encryption type.
func (t FheUintType) EncryptType() (fhevm.EncryptType, bool) {
	for et, ft := range fheTypes {
		if ft == t {
			return et, true
		}
	}
	return "", false
}

var (
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrNoSecretKey         = errors.New("engine has no secret key")
	ErrParamsMismatch      = errors.New("key does not match parameters")
)

// maxBits bounds the bit count read from untrusted input.
const maxBits = 256

// BitCiphertext is an integer encrypted as a vector of bit ciphertexts,
// least significant bit first.
type BitCiphertext struct {
	bits    []*rlwe.Ciphertext
	fheType FheUintType
}

// Type returns the type tag.
func (bc *BitCiphertext) Type() FheUintType { return bc.fheType }

// NumBits returns the number of encrypted bits.
func (bc *BitCiphertext) NumBits() int { return len(bc.bits) }

// MarshalBinary encodes bc as
// uint32 numBits | uint8 type | (uint32 len | bit)*, little endian.
func (bc *BitCiphertext) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(bc.bits))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint8(bc.fheType)); err != nil {
		return nil, err
	}

	for i, bit := range bc.bits {
		var bitBuf bytes.Buffer
		if err := gob.NewEncoder(&bitBuf).Encode(bit); err != nil {
			return nil, fmt.Errorf("bit %d: %w", i, err)
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(bitBuf.Len())); err != nil {
			return nil, err
		}
		if _, err := buf.Write(bitBuf.Bytes()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (bc *BitCiphertext) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)

	var numBits uint32
	if err := binary.Read(buf, binary.LittleEndian, &numBits); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	var fheType uint8
	if err := binary.Read(buf, binary.LittleEndian, &fheType); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	t := FheUintType(fheType)
	if t.NumBits() == 0 || int(numBits) != t.NumBits() || numBits > maxBits {
		return fmt.Errorf("%w: %d bits for type %s", ErrMalformedCiphertext, numBits, t)
	}

	bits := make([]*rlwe.Ciphertext, numBits)
	for i := range bits {
		var bitLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &bitLen); err != nil {
			return fmt.Errorf("%w: bit %d: %v", ErrMalformedCiphertext, i, err)
		}
		if int64(bitLen) > int64(buf.Len()) {
			return fmt.Errorf("%w: bit %d: truncated", ErrMalformedCiphertext, i)
		}
		bitData := make([]byte, bitLen)
		if _, err := io.ReadFull(buf, bitData); err != nil {
			return fmt.Errorf("%w: bit %d: %v", ErrMalformedCiphertext, i, err)
		}
		var ct rlwe.Ciphertext
		if err := gob.NewDecoder(bytes.NewReader(bitData)).Decode(&ct); err != nil {
			return fmt.Errorf("%w: bit %d: %v", ErrMalformedCiphertext, i, err)
		}
		bits[i] = &ct
	}
	if buf.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedCiphertext, buf.Len())
	}

	bc.bits = bits
	bc.fheType = t
	return nil
}

// check verifies that every bit is a degree 1 ciphertext over the ring of
// params. UnmarshalBinary cannot do this since it does not know params.
func (bc *BitCiphertext) check(params Parameters) error {
	n, maxLevel := params.N(), params.rlwe.MaxLevel()
	for i, bit := range bc.bits {
		if bit.MetaData == nil || len(bit.Value) != 2 {
			return fmt.Errorf("%w: bit %d: not a degree 1 ciphertext", ErrMalformedCiphertext, i)
		}
		for _, p := range bit.Value {
			if len(p.Coeffs) == 0 || len(p.Coeffs) > maxLevel+1 || len(p.Coeffs) != len(bit.Value[0].Coeffs) {
				return fmt.Errorf("%w: bit %d: level does not match parameters", ErrMalformedCiphertext, i)
			}
			for _, row := range p.Coeffs {
				if len(row) != n {
					return fmt.Errorf("%w: bit %d: ring degree %d, parameters %d", ErrMalformedCiphertext, i, len(row), n)
				}
			}
		}
	}
	return nil
}

// PeekType reads the type tag of a serialized BitCiphertext without
// decoding its bits.
func PeekType(data []byte) (FheUintType, error) {
	if len(data) < 5 {
		return 0, fmt.Errorf("%w: short header", ErrMalformedCiphertext)
	}
	t := FheUintType(data[4])
	if t.NumBits() == 0 {
		return 0, fmt.Errorf("%w: unknown type %d", ErrMalformedCiphertext, data[4])
	}
	return t, nil
}
