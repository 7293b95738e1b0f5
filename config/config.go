// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads fhevm service and CLI settings from flags, the
// environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/signer"
)

// Config is the resolved configuration.
type Config struct {
	ChainID         uint64 `mapstructure:"chain-id"`
	NetworkName     string `mapstructure:"network-name"`
	RPCURL          string `mapstructure:"rpc-url"`
	GatewayURL      string `mapstructure:"gateway-url"`
	ACLAddress      string `mapstructure:"acl-address"`
	ContractAddress string `mapstructure:"contract-address"`
	PrivateKey      string `mapstructure:"private-key"`

	LogLevel          string        `mapstructure:"log-level"`
	APIPort           uint16        `mapstructure:"api-port"`
	AllowedOrigins    []string      `mapstructure:"allowed-origins"`
	StorageLocation   string        `mapstructure:"storage-location"`
	StorageCapacityMB int64         `mapstructure:"storage-capacity-mb"`
	StorageTTL        time.Duration `mapstructure:"storage-ttl"`
	RedisURL          string        `mapstructure:"redis-url"`
	RateLimitMax      int           `mapstructure:"rate-limit-max"`
	RateLimitWindow   time.Duration `mapstructure:"rate-limit-window"`
	DataDir           string        `mapstructure:"data-dir"`
	ParamSet          string        `mapstructure:"param-set"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout"`
	MaxRequestBodyMB  int64         `mapstructure:"max-request-body-mb"`
}

// Network returns the client configuration. A configured contract address
// is registered under the name "contract".
func (c *Config) Network() fhevm.Config {
	cfg := fhevm.Config{
		ChainID:    c.ChainID,
		Name:       c.NetworkName,
		RPCURL:     c.RPCURL,
		GatewayURL: c.GatewayURL,
		ACLAddress: c.ACLAddress,
	}
	if c.ContractAddress != "" {
		cfg.Contracts = map[string]string{"contract": c.ContractAddress}
	}
	return cfg
}

// Signer returns the signer for the configured private key.
func (c *Config) Signer() (*signer.LocalSigner, error) {
	if c.PrivateKey == "" {
		return nil, errors.New("private key not set")
	}
	return signer.FromHex(c.PrivateKey)
}

// LogLevelValue parses the log level.
func (c *Config) LogLevelValue() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Parameters instantiates the configured lattice parameter set.
func (c *Config) Parameters() (lattice.Parameters, error) {
	lit, err := lattice.ParamSet(c.ParamSet)
	if err != nil {
		return lattice.Parameters{}, err
	}
	return lattice.NewParametersFromLiteral(lit)
}

// Validate checks the network and service settings.
func (c *Config) Validate() error {
	if err := c.Network().Validate(); err != nil {
		return err
	}
	if _, err := c.LogLevelValue(); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if _, err := lattice.ParamSet(c.ParamSet); err != nil {
		return err
	}
	if c.PrivateKey != "" {
		if _, err := signer.FromHex(c.PrivateKey); err != nil {
			return err
		}
	}
	switch c.StorageLocation {
	case StorageMemory:
		if c.StorageCapacityMB <= 0 {
			return fmt.Errorf("%s must be positive", StorageCapacityKey)
		}
	case StorageFile:
		if c.DataDir == "" {
			return fmt.Errorf("%s is required for file storage", DataDirKey)
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s is required for redis storage", RedisURLKey)
		}
	default:
		return fmt.Errorf("invalid %s %q: expected memory, file or redis", StorageLocationKey, c.StorageLocation)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("%s must be positive", RateLimitMaxKey)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("%s must be positive", RateLimitWindowKey)
	}
	if c.MaxRequestBodyMB <= 0 {
		return fmt.Errorf("%s must be positive", MaxRequestBodyMBKey)
	}
	return nil
}
