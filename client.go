// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

// WithDialer sets the engine dialer used by Init.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithProvider sets the provider used for signer lookups.
func WithProvider(p Provider) Option {
	return func(c *Client) { c.provider = p }
}

// WithGatewayConnector sets how Init connects to Config.GatewayURL.
func WithGatewayConnector(gc GatewayConnector) Option {
	return func(c *Client) { c.connector = gc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client encrypts typed values under the network public key and decrypts
// ciphertexts on behalf of the provider's signer.
//
// A Client is safe for concurrent use. Init calls are serialized; Encrypt,
// Decrypt and PublicKey only read the engine and key installed by the last
// successful Init.
type Client struct {
	initMu sync.Mutex

	mu        sync.RWMutex
	cfg       Config
	dialer    Dialer
	connector GatewayConnector
	provider  Provider
	log       *zap.Logger

	state     State
	engine    Engine
	publicKey string
	gateway   Gateway
}

// NewClient returns an uninitialized client for cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg: cfg,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Init creates the engine instance, reads its public key and, when a
// gateway URL is configured and a provider is available, opens an
// authenticated gateway session. A non-nil provider replaces the current
// one. Calling Init again re-creates the instance.
func (c *Client) Init(ctx context.Context, provider Provider) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	if provider != nil {
		c.provider = provider
	}
	c.state = StateInitializing
	c.engine = nil
	c.publicKey = ""
	oldGateway := c.gateway
	c.gateway = nil
	cfg, prov := c.cfg, c.provider
	c.mu.Unlock()

	if oldGateway != nil {
		if err := oldGateway.Close(); err != nil {
			c.log.Debug("closing previous gateway session", zap.Error(err))
		}
	}

	engine, gw, err := c.connect(ctx, cfg, prov)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.log.Warn("FHEVM initialization failed",
			zap.Uint64("chainId", cfg.ChainID),
			zap.Error(err),
		)
		return newError(CodeInitFailed, err.Error(), nil, err)
	}
	c.engine = engine
	c.publicKey = engine.PublicKey()
	c.gateway = gw
	c.state = StateReady
	c.log.Info("FHEVM initialized",
		zap.Uint64("chainId", cfg.ChainID),
		zap.String("network", cfg.Name),
		zap.Bool("gateway", gw != nil),
	)
	return nil
}

func (c *Client) connect(ctx context.Context, cfg Config, prov Provider) (Engine, Gateway, error) {
	if c.dialer == nil {
		return nil, nil, errors.New("no engine dialer configured")
	}

	if reader, ok := prov.(ChainIDReader); ok {
		id, err := reader.ChainID(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("read chain id: %w", err)
		}
		if !id.IsUint64() || id.Uint64() != cfg.ChainID {
			return nil, nil, fmt.Errorf("provider is connected to chain %s, expected %d", id, cfg.ChainID)
		}
	}

	engine, err := c.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if engine.PublicKey() == "" {
		return nil, nil, errors.New("engine returned an empty public key")
	}

	if cfg.GatewayURL == "" || prov == nil || c.connector == nil {
		return engine, nil, nil
	}
	signer, err := prov.Signer(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get signer: %w", err)
	}
	gw, err := c.connector.Connect(ctx, cfg.GatewayURL, signer)
	if err != nil {
		return nil, nil, fmt.Errorf("init gateway: %w", err)
	}
	return engine, gw, nil
}

// IsReady reports whether both the engine instance and its public key are
// present.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine != nil && c.publicKey != ""
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Instance returns the engine installed by Init.
func (c *Client) Instance() (Engine, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.engine == nil {
		return nil, ErrNotInitialized
	}
	return c.engine, nil
}

// PublicKey returns the public key of the engine instance.
func (c *Client) PublicKey() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.publicKey == "" {
		return "", ErrNotInitialized
	}
	return c.publicKey, nil
}

// Encrypt checks value against t and encrypts it with the matching engine
// primitive. It makes a single attempt. With a gateway session that
// implements Registrar, the ciphertext is registered to the signer before
// it is returned.
func (c *Client) Encrypt(ctx context.Context, value any, t EncryptType) (*EncryptedValue, error) {
	c.mu.RLock()
	engine, publicKey, gw := c.engine, c.publicKey, c.gateway
	c.mu.RUnlock()
	if engine == nil || publicKey == "" {
		return nil, ErrNotInitialized
	}

	prim, ok := primitives[t]
	if !ok {
		return nil, validationError(fmt.Sprintf("unsupported encryption type: %q", string(t)), value, t)
	}
	if !IsValid(value, t) {
		return nil, validationError(fmt.Sprintf("invalid value for type %s", t), value, t)
	}

	data, err := prim(ctx, engine, value)
	if err != nil {
		c.log.Debug("encryption failed", zap.Stringer("type", t), zap.Error(err))
		return nil, newError(CodeEncryption, err.Error(), ValueDetails{Value: value, Type: t}, err)
	}
	ev := &EncryptedValue{Data: data, Type: t, PublicKey: publicKey}

	if r, ok := gw.(Registrar); ok {
		if err := r.Register(ctx, ev); err != nil {
			c.log.Debug("ciphertext registration failed", zap.Stringer("type", t), zap.Error(err))
			return nil, newError(CodeEncryption, fmt.Sprintf("register ciphertext: %v", err), ValueDetails{Value: value, Type: t}, err)
		}
	}
	return ev, nil
}

// Decrypt returns the plaintext of req.Ciphertext. The provider's signer
// must be req.UserAddress (compared case-insensitively); otherwise Decrypt
// fails with ADDRESS_MISMATCH before anything is sent to the engine or
// gateway. With a gateway session the request goes to the gateway,
// otherwise to the engine's decrypt primitive.
func (c *Client) Decrypt(ctx context.Context, req DecryptionRequest) (*big.Int, error) {
	c.mu.RLock()
	engine, gw, prov := c.engine, c.gateway, c.provider
	c.mu.RUnlock()
	if engine == nil {
		return nil, ErrNotInitialized
	}

	details := req.Redacted()
	if prov == nil {
		return nil, newError(CodeDecryption, ErrNoSigner.Error(), details, ErrNoSigner)
	}
	signer, err := prov.Signer(ctx)
	if err != nil {
		return nil, newError(CodeDecryption, fmt.Sprintf("get signer: %v", err), details, err)
	}
	addr, err := signer.Address(ctx)
	if err != nil {
		return nil, newError(CodeDecryption, fmt.Sprintf("get signer address: %v", err), details, err)
	}
	if !strings.EqualFold(addr.Hex(), req.UserAddress) {
		c.log.Warn("decryption refused: signer address mismatch",
			zap.String("signer", addr.Hex()),
			zap.String("userAddress", req.UserAddress),
		)
		return nil, newError(CodeAddressMismatch, ErrAddressMismatch.Message, details, nil)
	}

	ciphertext, err := DecodeHex(req.Ciphertext)
	if err != nil {
		return nil, newError(CodeDecryption, "invalid ciphertext encoding", details, err)
	}

	var plaintext *big.Int
	if gw != nil {
		plaintext, err = gw.Decrypt(ctx, req)
	} else {
		plaintext, err = engine.Decrypt(ctx, ciphertext)
	}
	if err != nil {
		return nil, newError(CodeDecryption, err.Error(), details, err)
	}
	return plaintext, nil
}

// Signer returns the provider's signer.
func (c *Client) Signer(ctx context.Context) (Signer, error) {
	c.mu.RLock()
	prov := c.provider
	c.mu.RUnlock()
	if prov == nil {
		return nil, ErrNoSigner
	}
	return prov.Signer(ctx)
}

// SetProvider replaces the provider without re-initializing.
func (c *Client) SetProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = p
}

// Config returns the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig overlays the non-zero fields of patch onto the current
// configuration. It takes effect on the next Init.
func (c *Client) UpdateConfig(patch Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cfg.merge(patch)
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// Reset drops the engine instance, public key and gateway session and
// returns the client to the uninitialized state. The engine itself is not
// torn down.
func (c *Client) Reset() {
	c.mu.Lock()
	gw := c.gateway
	c.engine = nil
	c.publicKey = ""
	c.gateway = nil
	c.state = StateUninitialized
	c.mu.Unlock()

	if gw != nil {
		if err := gw.Close(); err != nil {
			c.log.Debug("closing gateway session", zap.Error(err))
		}
	}
}
