// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"

	"github.com/luxfi/fhevm"
)

// publicEncryptor encrypts bits under a public key.
type publicEncryptor struct {
	params Parameters
	enc    *rlwe.Encryptor
}

func newPublicEncryptor(params Parameters, pk *PublicKey) (*publicEncryptor, error) {
	if pk == nil || pk.pk == nil || len(pk.pk.Value) != 2 {
		return nil, fmt.Errorf("%w: empty public key", ErrParamsMismatch)
	}
	for _, p := range pk.pk.Value {
		if n := p.Q.N(); n != params.N() {
			return nil, fmt.Errorf("%w: public key ring degree %d, parameters %d", ErrParamsMismatch, n, params.N())
		}
	}
	return &publicEncryptor{
		params: params,
		enc:    rlwe.NewEncryptor(params.rlwe, pk.pk),
	}, nil
}

func (e *publicEncryptor) encryptBit(value bool) (*rlwe.Ciphertext, error) {
	pt := rlwe.NewPlaintext(e.params.rlwe, e.params.rlwe.MaxLevel())
	q := e.params.Q()

	// Encode bit as Q/8 (true) or -Q/8 (false)
	if value {
		pt.Value.Coeffs[0][0] = q / 8
	} else {
		pt.Value.Coeffs[0][0] = q - (q / 8)
	}

	e.params.rlwe.RingQ().NTT(pt.Value, pt.Value)

	ct := rlwe.NewCiphertext(e.params.rlwe, 1, e.params.rlwe.MaxLevel())
	if err := e.enc.Encrypt(pt, ct); err != nil {
		return nil, fmt.Errorf("public key encrypt: %w", err)
	}
	ct.IsNTT = true
	return ct, nil
}

// encrypt encrypts the low t.NumBits() bits of v, LSB first.
func (e *publicEncryptor) encrypt(ctx context.Context, v *big.Int, t FheUintType) (*BitCiphertext, error) {
	n := t.NumBits()
	if v.Sign() < 0 || v.BitLen() > n {
		return nil, fmt.Errorf("value does not fit in %s", t)
	}
	bits := make([]*rlwe.Ciphertext, n)
	for i := range bits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ct, err := e.encryptBit(v.Bit(i) == 1)
		if err != nil {
			return nil, fmt.Errorf("bit %d: %w", i, err)
		}
		bits[i] = ct
	}
	return &BitCiphertext{bits: bits, fheType: t}, nil
}

type decryptor struct {
	params Parameters
	dec    *rlwe.Decryptor
	ringQ  *ring.Ring
}

func newDecryptor(params Parameters, sk *SecretKey) (*decryptor, error) {
	if sk == nil || sk.sk == nil {
		return nil, fmt.Errorf("%w: empty secret key", ErrParamsMismatch)
	}
	if n := sk.sk.Value.Q.N(); n != params.N() {
		return nil, fmt.Errorf("%w: secret key ring degree %d, parameters %d", ErrParamsMismatch, n, params.N())
	}
	return &decryptor{
		params: params,
		dec:    rlwe.NewDecryptor(params.rlwe, sk.sk),
		ringQ:  params.rlwe.RingQ(),
	}, nil
}

func (d *decryptor) decryptBit(ct *rlwe.Ciphertext) bool {
	pt := rlwe.NewPlaintext(d.params.rlwe, ct.Level())
	d.dec.Decrypt(ct, pt)

	if pt.IsNTT {
		d.ringQ.INTT(pt.Value, pt.Value)
	}

	// true was encoded as Q/8, false as 7Q/8
	return pt.Value.Coeffs[0][0] < d.params.Q()>>1
}

func (d *decryptor) decrypt(bc *BitCiphertext) *big.Int {
	v := new(big.Int)
	for i, bit := range bc.bits {
		if d.decryptBit(bit) {
			v.SetBit(v, i, 1)
		}
	}
	return v
}

// PublicEngine encrypts under a public key. It cannot decrypt.
type PublicEngine struct {
	params Parameters
	pkHex  string

	mu  sync.Mutex // rlwe encryptors are not safe for concurrent use
	enc *publicEncryptor
}

// NewPublicEngine returns an engine encrypting under pk. It fails with
// ErrParamsMismatch when pk was generated for other parameters.
func NewPublicEngine(params Parameters, pk *PublicKey) (*PublicEngine, error) {
	enc, err := newPublicEncryptor(params, pk)
	if err != nil {
		return nil, err
	}
	pkHex, err := pk.Hex()
	if err != nil {
		return nil, err
	}
	return &PublicEngine{
		params: params,
		pkHex:  pkHex,
		enc:    enc,
	}, nil
}

func (e *PublicEngine) encrypt(ctx context.Context, v *big.Int, t FheUintType) ([]byte, error) {
	e.mu.Lock()
	bc, err := e.enc.encrypt(ctx, v, t)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return bc.MarshalBinary()
}

func (e *PublicEngine) EncryptUint8(ctx context.Context, v uint8) ([]byte, error) {
	return e.encrypt(ctx, new(big.Int).SetUint64(uint64(v)), FheUint8)
}

func (e *PublicEngine) EncryptUint16(ctx context.Context, v uint16) ([]byte, error) {
	return e.encrypt(ctx, new(big.Int).SetUint64(uint64(v)), FheUint16)
}

func (e *PublicEngine) EncryptUint32(ctx context.Context, v uint32) ([]byte, error) {
	return e.encrypt(ctx, new(big.Int).SetUint64(uint64(v)), FheUint32)
}

func (e *PublicEngine) EncryptUint64(ctx context.Context, v *big.Int) ([]byte, error) {
	return e.encrypt(ctx, v, FheUint64)
}

func (e *PublicEngine) EncryptBool(ctx context.Context, v bool) ([]byte, error) {
	b := new(big.Int)
	if v {
		b.SetInt64(1)
	}
	return e.encrypt(ctx, b, FheBool)
}

func (e *PublicEngine) EncryptAddress(ctx context.Context, addr string) ([]byte, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	a := common.HexToAddress(addr)
	return e.encrypt(ctx, new(uint256.Int).SetBytes20(a.Bytes()).ToBig(), FheUint160)
}

// Decrypt always fails with ErrNoSecretKey.
func (e *PublicEngine) Decrypt(context.Context, []byte) (*big.Int, error) {
	return nil, ErrNoSecretKey
}

// PublicKey returns the hex encoded public key.
func (e *PublicEngine) PublicKey() string {
	return e.pkHex
}

// Params returns the engine parameters.
func (e *PublicEngine) Params() Parameters {
	return e.params
}

// Engine holds a full key pair and can decrypt what it encrypts.
type Engine struct {
	*PublicEngine

	decMu sync.Mutex
	dec   *decryptor
}

// NewEngine returns an engine for the key pair (sk, pk).
func NewEngine(params Parameters, sk *SecretKey, pk *PublicKey) (*Engine, error) {
	pub, err := NewPublicEngine(params, pk)
	if err != nil {
		return nil, err
	}
	dec, err := newDecryptor(params, sk)
	if err != nil {
		return nil, err
	}
	return &Engine{
		PublicEngine: pub,
		dec:          dec,
	}, nil
}

// GenerateEngine creates an engine with a fresh key pair.
func GenerateEngine(params Parameters) (*Engine, error) {
	sk, pk := NewKeyGenerator(params).GenKeyPair()
	return NewEngine(params, sk, pk)
}

// Decrypt decodes a serialized BitCiphertext and decrypts it. Ciphertexts
// made under other parameters fail with ErrMalformedCiphertext.
func (e *Engine) Decrypt(ctx context.Context, ciphertext []byte) (*big.Int, error) {
	var bc BitCiphertext
	if err := bc.UnmarshalBinary(ciphertext); err != nil {
		return nil, err
	}
	if err := bc.check(e.params); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.decMu.Lock()
	defer e.decMu.Unlock()
	return e.dec.decrypt(&bc), nil
}

var (
	_ fhevm.Engine = (*PublicEngine)(nil)
	_ fhevm.Engine = (*Engine)(nil)
)
