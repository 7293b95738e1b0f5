// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON, YAML or TOML config file")

	fs.Uint64(ChainIDKey, DefaultChainID, "Chain id of the target network")
	fs.String(NetworkNameKey, defaultNetworkName, "Network name")
	fs.String(RPCURLKey, defaultRPCURL, "RPC endpoint of the target network")
	fs.String(GatewayURLKey, "", "Decryption gateway URL (http, https, ws or wss)")
	fs.String(ACLAddressKey, "", "Access control contract address")
	fs.String(ContractAddressKey, "", "Contract allowed to request decryption")
	fs.String(PrivateKeyKey, "", "Hex private key used to sign decryption requests")

	fs.String(LogLevelKey, defaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Uint16(APIPortKey, defaultAPIPort, "HTTP listen port")
	fs.StringSlice(AllowedOriginsKey, nil, "CORS origins allowed to call the API")
	fs.String(StorageLocationKey, defaultStorageLocation, "Ciphertext storage: memory, file or redis")
	fs.Int64(StorageCapacityKey, defaultStorageCapacityMB, "Memory storage capacity in MB")
	fs.Duration(StorageTTLKey, 0, "Redis ciphertext expiry, 0 to keep forever")
	fs.String(RedisURLKey, "", "Redis URL for storage and rate limiting")
	fs.Int(RateLimitMaxKey, defaultRateLimitMax, "Requests allowed per identifier per window")
	fs.Duration(RateLimitWindowKey, defaultRateLimitWindow, "Rate limit window")
	fs.String(DataDirKey, defaultDataDir, "Directory for keys and file storage")
	fs.String(ParamSetKey, defaultParamSet, "Lattice parameter set")
	fs.Duration(ShutdownTimeoutKey, defaultShutdownTimeout, "Graceful shutdown timeout")
	fs.Int64(MaxRequestBodyMBKey, defaultMaxRequestBodyMB, "Maximum request body size in MB")
}

// BuildViper builds the viper instance. Every key may come from a flag, an
// environment variable or the config file; the config file is optional.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(ChainIDKey, DefaultChainID)
	v.SetDefault(NetworkNameKey, defaultNetworkName)
	v.SetDefault(RPCURLKey, defaultRPCURL)
	v.SetDefault(GatewayURLKey, "")
	v.SetDefault(ACLAddressKey, "")
	v.SetDefault(ContractAddressKey, "")
	v.SetDefault(PrivateKeyKey, "")

	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(AllowedOriginsKey, []string{})
	v.SetDefault(StorageLocationKey, defaultStorageLocation)
	v.SetDefault(StorageCapacityKey, defaultStorageCapacityMB)
	v.SetDefault(StorageTTLKey, 0)
	v.SetDefault(RedisURLKey, "")
	v.SetDefault(RateLimitMaxKey, defaultRateLimitMax)
	v.SetDefault(RateLimitWindowKey, defaultRateLimitWindow)
	v.SetDefault(DataDirKey, defaultDataDir)
	v.SetDefault(ParamSetKey, defaultParamSet)
	v.SetDefault(ShutdownTimeoutKey, defaultShutdownTimeout)
	v.SetDefault(MaxRequestBodyMBKey, defaultMaxRequestBodyMB)
}

// BuildConfig constructs the config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
