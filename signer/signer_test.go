// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package signer

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm"
)

// Well-known development key (hardhat account #0).
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestFromHex(t *testing.T) {
	s, err := FromHex(devKey)
	require.NoError(t, err)

	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(devAddress), addr)
	require.Equal(t, devKey, s.PrivateKeyHex())

	_, err = FromHex("0x1234")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSignAndRecover(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	ctx := context.Background()
	addr, _ := s.Address(ctx)

	msg := DecryptionMessage(
		"0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		addr.Hex(),
		"0xdeadbeef",
	)
	sig, err := s.SignMessage(ctx, msg)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	require.Contains(t, []byte{27, 28}, sig[64])

	got, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	require.Equal(t, addr, got)
	require.True(t, Verify(addr, msg, sig))

	// V in {0, 1} is accepted too.
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	require.True(t, Verify(addr, msg, raw))

	// A different message recovers a different address.
	require.False(t, Verify(addr, DecryptionMessage("0x0", addr.Hex(), "0xdeadbeef"), sig))

	_, err = RecoverAddress(msg, sig[:64])
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestDecryptionMessageIgnoresCase(t *testing.T) {
	a := DecryptionMessage("0xABCDEF0000000000000000000000000000000001", "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266", "0xDEADBEEF")
	b := DecryptionMessage("0xabcdef0000000000000000000000000000000001", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", "deadbeef")
	require.Equal(t, a, b)
	require.NotEqual(t, a, DecryptionMessage("0xabcdef0000000000000000000000000000000001", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", "deadbeee"))
}

func TestOwnershipMessages(t *testing.T) {
	user := "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"
	require.Equal(t, EncryptionMessage(user, "UINT8"), EncryptionMessage(strings.ToLower(user), "uint8"))
	require.NotEqual(t, EncryptionMessage(user, "uint8"), EncryptionMessage(user, "uint16"))

	require.Equal(t, RegistrationMessage(user, "0xDEADBEEF"), RegistrationMessage(strings.ToLower(user), "deadbeef"))
	require.NotEqual(t, RegistrationMessage(user, "0xdeadbeef"), RegistrationMessage(user, "0xdeadbeee"))

	// A signature for one purpose does not verify for another.
	require.NotEqual(t, RegistrationMessage(user, "0xdeadbeef"), DecryptionMessage(user, user, "0xdeadbeef"))
}

func TestStaticProvider(t *testing.T) {
	s, err := FromHex(devKey)
	require.NoError(t, err)

	got, err := NewProvider(s).Signer(context.Background())
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = NewProvider(nil).Signer(context.Background())
	require.True(t, errors.Is(err, fhevm.ErrNoSigner))
}

func TestDialRPCChainID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_chainId" {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0xaa36a7"})
	}))
	defer srv.Close()

	p, err := DialRPC(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	defer p.Close()

	id, err := p.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(11155111), id)

	_, err = p.Signer(context.Background())
	require.ErrorIs(t, err, fhevm.ErrNoSigner)
}
