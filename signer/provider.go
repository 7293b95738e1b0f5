// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/luxfi/fhevm"
)

// StaticProvider hands out a fixed signer.
type StaticProvider struct {
	signer fhevm.Signer
}

// NewProvider returns a provider for s.
func NewProvider(s fhevm.Signer) *StaticProvider {
	return &StaticProvider{signer: s}
}

// Signer implements fhevm.Provider.
func (p *StaticProvider) Signer(context.Context) (fhevm.Signer, error) {
	if p.signer == nil {
		return nil, fhevm.ErrNoSigner
	}
	return p.signer, nil
}

// ChainClient is the subset of ethclient.Client used by RPCProvider.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// RPCProvider is a provider connected to a chain RPC endpoint. The client
// verifies the endpoint's chain id during Init.
type RPCProvider struct {
	client ChainClient
	signer fhevm.Signer
}

// NewRPCProvider wraps an existing chain client.
func NewRPCProvider(client ChainClient, s fhevm.Signer) *RPCProvider {
	return &RPCProvider{client: client, signer: s}
}

// DialRPC connects to rpcURL. s may be nil for an encrypt-only provider.
func DialRPC(ctx context.Context, rpcURL string, s fhevm.Signer) (*RPCProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return NewRPCProvider(client, s), nil
}

// ChainID implements fhevm.ChainIDReader.
func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.client.ChainID(ctx)
}

// Signer implements fhevm.Provider.
func (p *RPCProvider) Signer(context.Context) (fhevm.Signer, error) {
	if p.signer == nil {
		return nil, fhevm.ErrNoSigner
	}
	return p.signer, nil
}

// Close closes the RPC connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}
