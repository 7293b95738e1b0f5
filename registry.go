// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry holds one lazily initialized Client per configuration
// fingerprint. It is the shared client of a server process; tests create
// their own.
type Registry struct {
	opts []Option

	mu      sync.Mutex
	clients map[string]*Client
	group   singleflight.Group
}

// NewRegistry returns an empty registry. opts are applied to every client
// it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// Client returns the ready client for cfg, creating and initializing it on
// first use. Concurrent first calls share a single Init. A failed Init is
// returned to every waiting caller and retried on the next call.
func (r *Registry) Client(ctx context.Context, cfg Config) (*Client, error) {
	key := cfg.Fingerprint()

	r.mu.Lock()
	c, ok := r.clients[key]
	r.mu.Unlock()
	if ok && c.IsReady() {
		return c, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		c, ok := r.clients[key]
		r.mu.Unlock()
		if ok && c.IsReady() {
			return c, nil
		}
		if !ok {
			var err error
			c, err = NewClient(cfg, r.opts...)
			if err != nil {
				return nil, err
			}
		}
		if err := c.Init(ctx, nil); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.clients[key] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// Encrypt encrypts value with the shared client for cfg, initializing it
// first if needed.
func (r *Registry) Encrypt(ctx context.Context, cfg Config, value any, t EncryptType) (*EncryptedValue, error) {
	c, err := r.Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(ctx, value, t)
}

// PublicKey returns the public key of the shared client for cfg.
func (r *Registry) PublicKey(ctx context.Context, cfg Config) (string, error) {
	c, err := r.Client(ctx, cfg)
	if err != nil {
		return "", err
	}
	return c.PublicKey()
}

// Remove resets and forgets the client for cfg.
func (r *Registry) Remove(cfg Config) {
	key := cfg.Fingerprint()
	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()
	if ok {
		c.Reset()
	}
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
