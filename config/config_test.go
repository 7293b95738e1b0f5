// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	v, err := BuildViper(fs)
	if err != nil {
		return Config{}, err
	}
	return NewConfig(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	require.Equal(t, uint64(DefaultChainID), cfg.ChainID)
	require.Equal(t, StorageMemory, cfg.StorageLocation)
	require.Equal(t, 10, cfg.RateLimitMax)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, "PN10QP27", cfg.ParamSet)

	lvl, err := cfg.LogLevelValue()
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, lvl)

	net := cfg.Network()
	require.NoError(t, net.Validate())
	require.Empty(t, net.Contracts)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("CHAIN_ID", "31337")
	t.Setenv("RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("GATEWAY_URL", "ws://127.0.0.1:8448")
	t.Setenv("CONTRACT_ADDRESS", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := load(t)
	require.NoError(t, err)

	net := cfg.Network()
	require.Equal(t, uint64(31337), net.ChainID)
	require.Equal(t, "http://127.0.0.1:8545", net.RPCURL)
	require.Equal(t, "ws://127.0.0.1:8448", net.GatewayURL)
	addr, ok := net.ContractAddress("contract")
	require.True(t, ok)
	require.Equal(t, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", addr)
	require.Equal(t, 30*time.Second, cfg.RateLimitWindow)

	s, err := cfg.Signer()
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CHAIN_ID", "31337")

	cfg, err := load(t, "--chain-id=1", "--allowed-origins=https://a.example,https://b.example")
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.ChainID)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhevm.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"chain-id": 8009,
		"network-name": "zama-devnet",
		"rpc-url": "https://devnet.zama.ai",
		"storage-location": "file",
		"data-dir": "/var/lib/fhevm",
		"log-level": "debug"
	}`), 0o644))

	cfg, err := load(t, "--config-file="+path)
	require.NoError(t, err)
	require.Equal(t, uint64(8009), cfg.ChainID)
	require.Equal(t, "zama-devnet", cfg.NetworkName)
	require.Equal(t, StorageFile, cfg.StorageLocation)
	require.Equal(t, "/var/lib/fhevm", cfg.DataDir)

	_, err = load(t, "--config-file="+filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"redis without url", []string{"--storage-location=redis"}},
		{"unknown storage", []string{"--storage-location=s3"}},
		{"bad log level", []string{"--log-level=loud"}},
		{"bad param set", []string{"--param-set=PN1"}},
		{"bad private key", []string{"--private-key=0x1234"}},
		{"bad rpc url", []string{"--rpc-url=localhost"}},
		{"zero chain", []string{"--chain-id=0"}},
		{"bad contract", []string{"--contract-address=0x1234"}},
		{"zero rate limit", []string{"--rate-limit-max=0"}},
		{"zero window", []string{"--rate-limit-window=0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
		})
	}

	cfg, err := load(t, "--storage-location=redis", "--redis-url=redis://127.0.0.1:6379/0")
	require.NoError(t, err)
	require.Equal(t, StorageRedis, cfg.StorageLocation)
}

func TestSignerRequiresKey(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)
	_, err = cfg.Signer()
	require.Error(t, err)
}

func TestParameters(t *testing.T) {
	cfg, err := load(t, "--param-set=PN9QP28_STD128")
	require.NoError(t, err)
	params, err := cfg.Parameters()
	require.NoError(t, err)
	require.Equal(t, 512, params.N())
}
