// Package lattice is an LWE engine for the fhevm client: parameter sets,
// key generation, public-key encryption of typed values as vectors of
// encrypted bits, and secret-key decryption.
//
// It is built on luxfi/lattice primitives. Each plaintext bit is encoded
// as +Q/8 (true) or -Q/8 (false) in the constant coefficient of an RLWE
// plaintext.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package lattice

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// ParametersLiteral is a user-friendly parameter specification.
type ParametersLiteral struct {
	// LogN is log2 of the ring dimension.
	LogN int
	// Q is the ciphertext modulus.
	Q uint64
}

// Standard parameter sets
var (
	// PN10QP27 provides ~128-bit security with good performance.
	// N=1024, Q=134215681
	PN10QP27 = ParametersLiteral{LogN: 10, Q: 0x7fff801}

	// PN11QP54 provides ~128-bit security with higher precision.
	// N=2048, Q=~2^54
	PN11QP54 = ParametersLiteral{LogN: 11, Q: 0x3FFFFFFFFFC0001}

	// PN9QP28_STD128 is the smallest set, NTT-friendly Q ≡ 1 (mod 2048).
	PN9QP28_STD128 = ParametersLiteral{LogN: 9, Q: 0x10001801}
)

var paramSets = map[string]ParametersLiteral{
	"PN10QP27":       PN10QP27,
	"PN11QP54":       PN11QP54,
	"PN9QP28_STD128": PN9QP28_STD128,
}

// ParamSet looks up a standard parameter set by name.
func ParamSet(name string) (ParametersLiteral, error) {
	lit, ok := paramSets[name]
	if !ok {
		return ParametersLiteral{}, fmt.Errorf("unknown parameter set %q", name)
	}
	return lit, nil
}

// Parameters is an instantiated parameter set.
type Parameters struct {
	rlwe rlwe.Parameters
}

// NewParametersFromLiteral creates Parameters from a literal specification.
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	p, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return Parameters{}, fmt.Errorf("create parameters: %w", err)
	}
	return Parameters{rlwe: p}, nil
}

// N returns the ring dimension.
func (p Parameters) N() int {
	return p.rlwe.N()
}

// Q returns the modulus.
func (p Parameters) Q() uint64 {
	return p.rlwe.Q()[0]
}
