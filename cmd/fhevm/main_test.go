// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testKey      = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testContract = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level=error"))
	err := root.Execute()
	return out.String(), err
}

func TestBoundsCmd(t *testing.T) {
	out, err := run(t, "bounds")
	require.NoError(t, err)
	require.Contains(t, out, "18446744073709551615")
	require.Contains(t, out, "0x"+strings.Repeat("f", 40))
	for _, typ := range []string{"UINT8", "UINT16", "UINT32", "UINT64", "BOOL", "ADDRESS"} {
		require.Contains(t, strings.ToUpper(out), typ)
	}
}

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
		want    string
	}{
		{[]string{"--type", "uint8", "255"}, false, "valid uint8: 255"},
		{[]string{"--type", "uint8", "256"}, true, ""},
		{[]string{"--type", "uint64", "18446744073709551615"}, false, "valid uint64: 18446744073709551615"},
		{[]string{"--type", "bool", "TRUE"}, false, "valid bool: true"},
		{[]string{"--type", "bool", "1"}, true, ""},
		{[]string{"--type", "address", "0x1234"}, true, ""},
		{[]string{"--type", "uint256", "1"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := run(t, append([]string{"validate"}, tt.args...)...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Contains(t, out, tt.want)
		})
	}
}

func TestKeygenAccount(t *testing.T) {
	out, err := run(t, "keygen", "--account")
	require.NoError(t, err)
	require.Contains(t, out, "address:     0x")
	require.Contains(t, out, "private key: ")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "bounds", "--storage-location=tape")
	require.Error(t, err)
}

func TestEncryptDecryptLocal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation in short mode")
	}
	dir := t.TempDir()

	out, err := run(t, "keygen", "--data-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "public key: 0x")

	pk1, err := run(t, "pubkey", "--data-dir", dir)
	require.NoError(t, err)
	pk2, err := run(t, "pubkey", "--data-dir", dir)
	require.NoError(t, err)
	require.Equal(t, pk1, pk2)

	tests := []struct {
		typ   string
		value string
		want  string
	}{
		{"uint8", "42", "42"},
		{"bool", "true", "true"},
		{"uint64", "18446744073709551615", "18446744073709551615"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			ct, err := run(t, "encrypt", "--data-dir", dir, "--type", tt.typ, tt.value)
			require.NoError(t, err)
			ct = strings.TrimSpace(ct)
			require.True(t, strings.HasPrefix(ct, "0x"))

			out, err := run(t, "decrypt", "--data-dir", dir, "--private-key", testKey, "--contract", testContract, ct)
			require.NoError(t, err)
			require.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}

	// Decrypting on behalf of another user is refused.
	ct, err := run(t, "encrypt", "--data-dir", dir, "--type", "uint8", "1")
	require.NoError(t, err)
	_, err = run(t, "decrypt", "--data-dir", dir, "--private-key", testKey,
		"--contract", testContract, "--user", testContract, strings.TrimSpace(ct))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ADDRESS_MISMATCH")
}

func TestEncryptThroughGatewayNeedsSigner(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	_, err := run(t, "encrypt", "--gateway-url", "http://127.0.0.1:1", "--type", "uint8", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "registered to the signer")
}
