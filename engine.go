// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Engine is the encryption engine a Client delegates to: six typed
// encryption primitives, one decryption primitive and the public key the
// primitives encrypt under.
type Engine interface {
	EncryptUint8(ctx context.Context, v uint8) ([]byte, error)
	EncryptUint16(ctx context.Context, v uint16) ([]byte, error)
	EncryptUint32(ctx context.Context, v uint32) ([]byte, error)
	EncryptUint64(ctx context.Context, v *big.Int) ([]byte, error)
	EncryptBool(ctx context.Context, v bool) ([]byte, error)
	EncryptAddress(ctx context.Context, addr string) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) (*big.Int, error)
	// PublicKey returns the hex encoded public key.
	PublicKey() string
}

// Dialer creates an Engine for a network configuration.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Engine, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg Config) (Engine, error)

func (f DialerFunc) Dial(ctx context.Context, cfg Config) (Engine, error) {
	return f(ctx, cfg)
}

// Signer is an identity that authorizes decryption with its signature.
type Signer interface {
	Address(ctx context.Context) (common.Address, error)
	// SignMessage returns a 65 byte EIP-191 personal signature over msg.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Provider supplies the signer of the connected account.
type Provider interface {
	Signer(ctx context.Context) (Signer, error)
}

// ChainIDReader is implemented by providers connected to a chain. Init
// checks the reported id against Config.ChainID.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Gateway performs authenticated decryption on behalf of a signer.
type Gateway interface {
	Decrypt(ctx context.Context, req DecryptionRequest) (*big.Int, error)
	Close() error
}

// Registrar is implemented by gateways that decrypt a ciphertext only for
// its registered owner. Client.Encrypt registers every value it produces
// with such a gateway.
type Registrar interface {
	Register(ctx context.Context, ev *EncryptedValue) error
}

// GatewayConnector opens an authenticated gateway session for signer.
type GatewayConnector interface {
	Connect(ctx context.Context, url string, signer Signer) (Gateway, error)
}

// GatewayConnectorFunc adapts a function to GatewayConnector.
type GatewayConnectorFunc func(ctx context.Context, url string, signer Signer) (Gateway, error)

func (f GatewayConnectorFunc) Connect(ctx context.Context, url string, signer Signer) (Gateway, error) {
	return f(ctx, url, signer)
}

// primitive encrypts a value already accepted by IsValid.
type primitive func(ctx context.Context, e Engine, v any) ([]byte, error)

// primitives maps every EncryptType to its engine primitive. Adding a type
// means adding one entry here.
var primitives = map[EncryptType]primitive{
	TypeUint8: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		n, _ := numberValue(v)
		return e.EncryptUint8(ctx, uint8(n.Uint64()))
	},
	TypeUint16: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		n, _ := numberValue(v)
		return e.EncryptUint16(ctx, uint16(n.Uint64()))
	},
	TypeUint32: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		n, _ := numberValue(v)
		return e.EncryptUint32(ctx, uint32(n.Uint64()))
	},
	TypeUint64: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		n, ok := numberValue(v)
		if !ok {
			n, _ = largeValue(v)
		}
		return e.EncryptUint64(ctx, new(big.Int).Set(n))
	},
	TypeBool: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		return e.EncryptBool(ctx, v.(bool))
	},
	TypeAddress: func(ctx context.Context, e Engine, v any) ([]byte, error) {
		return e.EncryptAddress(ctx, v.(string))
	},
}
