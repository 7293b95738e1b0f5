// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
)

// PublicKeySource fetches the hex public key published by a gateway.
type PublicKeySource func(ctx context.Context, gatewayURL string) (string, error)

// Dialer creates engines for fhevm clients.
//
// With a local Engine set every dial returns it. Otherwise, when the
// network config names a gateway and a key source is set, the dialer
// fetches the gateway's public key and returns an encrypt-only engine.
// As a last resort it generates a fresh local key pair.
type Dialer struct {
	Params    Parameters
	Engine    *Engine
	KeySource PublicKeySource
	Logger    *zap.Logger
}

// Dial implements fhevm.Dialer.
func (d *Dialer) Dial(ctx context.Context, cfg fhevm.Config) (fhevm.Engine, error) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if d.Engine != nil {
		return d.Engine, nil
	}

	if cfg.GatewayURL != "" && d.KeySource != nil {
		pkHex, err := d.KeySource(ctx, cfg.GatewayURL)
		if err != nil {
			return nil, fmt.Errorf("fetch public key: %w", err)
		}
		pk, err := PublicKeyFromHex(pkHex)
		if err != nil {
			return nil, err
		}
		log.Debug("using gateway public key",
			zap.String("gateway", cfg.GatewayURL),
			zap.Uint64("chainId", cfg.ChainID),
		)
		return NewPublicEngine(d.Params, pk)
	}

	log.Info("generating local key pair", zap.Int("n", d.Params.N()))
	return GenerateEngine(d.Params)
}
