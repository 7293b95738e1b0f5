// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package fhevm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Config describes the network a client encrypts for.
type Config struct {
	ChainID uint64 `json:"chainId" mapstructure:"chain-id"`
	Name    string `json:"name" mapstructure:"network-name"`
	RPCURL  string `json:"rpcUrl" mapstructure:"rpc-url"`

	// GatewayURL is the decryption gateway. Optional.
	GatewayURL string `json:"gatewayUrl,omitempty" mapstructure:"gateway-url"`
	// ACLAddress is the access control contract. Optional.
	ACLAddress string `json:"aclAddress,omitempty" mapstructure:"acl-address"`
	// Contracts maps contract names to addresses. Optional.
	Contracts map[string]string `json:"contracts,omitempty" mapstructure:"contracts"`
}

// Validate checks required fields and the format of optional ones.
func (c Config) Validate() error {
	var errs []error
	if !IsValidChainID(c.ChainID) {
		errs = append(errs, errors.New("chainId must be a positive integer"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !IsValidRPCURL(c.RPCURL) {
		errs = append(errs, fmt.Errorf("invalid rpcUrl: %q", c.RPCURL))
	}
	if c.GatewayURL != "" && !IsValidGatewayURL(c.GatewayURL) {
		errs = append(errs, fmt.Errorf("invalid gatewayUrl: %q", c.GatewayURL))
	}
	if c.ACLAddress != "" && !IsValidAddress(c.ACLAddress) {
		errs = append(errs, fmt.Errorf("invalid aclAddress: %q", c.ACLAddress))
	}
	for name, addr := range c.Contracts {
		if !IsValidAddress(addr) {
			errs = append(errs, fmt.Errorf("invalid address for contract %q: %q", name, addr))
		}
	}
	if len(errs) > 0 {
		return newError(CodeValidation, "invalid configuration", nil, errors.Join(errs...))
	}
	return nil
}

// Fingerprint identifies the network and gateway pair of c. Two configs
// with the same fingerprint share a client in a Registry.
func (c Config) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s", c.ChainID, c.RPCURL, c.GatewayURL, strings.ToLower(c.ACLAddress))
	names := make([]string, 0, len(c.Contracts))
	for name := range c.Contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%s", name, strings.ToLower(c.Contracts[name]))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ContractAddress returns the address registered under name.
func (c Config) ContractAddress(name string) (string, bool) {
	addr, ok := c.Contracts[name]
	return addr, ok
}

// merge overlays the non-zero fields of patch onto c.
func (c Config) merge(patch Config) Config {
	if patch.ChainID != 0 {
		c.ChainID = patch.ChainID
	}
	if patch.Name != "" {
		c.Name = patch.Name
	}
	if patch.RPCURL != "" {
		c.RPCURL = patch.RPCURL
	}
	if patch.GatewayURL != "" {
		c.GatewayURL = patch.GatewayURL
	}
	if patch.ACLAddress != "" {
		c.ACLAddress = patch.ACLAddress
	}
	if len(patch.Contracts) > 0 {
		merged := make(map[string]string, len(c.Contracts)+len(patch.Contracts))
		for k, v := range c.Contracts {
			merged[k] = v
		}
		for k, v := range patch.Contracts {
			merged[k] = v
		}
		c.Contracts = merged
	}
	return c
}
