// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package config

import "time"

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Network keys. With hyphens replaced by underscores and upper-cased
	// they are also the environment variables: CHAIN_ID, RPC_URL,
	// GATEWAY_URL, ACL_ADDRESS, CONTRACT_ADDRESS and PRIVATE_KEY.
	ChainIDKey         = "chain-id"
	NetworkNameKey     = "network-name"
	RPCURLKey          = "rpc-url"
	GatewayURLKey      = "gateway-url"
	ACLAddressKey      = "acl-address"
	ContractAddressKey = "contract-address"
	PrivateKeyKey      = "private-key"

	// Service keys
	LogLevelKey         = "log-level"
	APIPortKey          = "api-port"
	AllowedOriginsKey   = "allowed-origins"
	StorageLocationKey  = "storage-location"
	StorageCapacityKey  = "storage-capacity-mb"
	StorageTTLKey       = "storage-ttl"
	RedisURLKey         = "redis-url"
	RateLimitMaxKey     = "rate-limit-max"
	RateLimitWindowKey  = "rate-limit-window"
	DataDirKey          = "data-dir"
	ParamSetKey         = "param-set"
	ShutdownTimeoutKey  = "shutdown-timeout"
	MaxRequestBodyMBKey = "max-request-body-mb"
)

// Storage locations
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

const (
	DefaultChainID     = 11155111
	defaultNetworkName = "sepolia"
	defaultRPCURL      = "https://rpc.sepolia.org"

	defaultLogLevel          = "info"
	defaultAPIPort           = 8448
	defaultStorageLocation   = StorageMemory
	defaultStorageCapacityMB = 256
	defaultRateLimitMax      = 10
	defaultRateLimitWindow   = time.Minute
	defaultDataDir           = "./data"
	defaultParamSet          = "PN10QP27"
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxRequestBodyMB  = 16
)
