// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/gateway"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/signer"
)

// newClient builds an initialized fhevm client. With a gateway configured
// the client encrypts under the gateway's public key and decrypts through
// it; otherwise it uses the local key pair in the data directory.
func (a *app) newClient(ctx context.Context, provider fhevm.Provider) (*fhevm.Client, error) {
	params, err := a.cfg.Parameters()
	if err != nil {
		return nil, err
	}
	dialer := &lattice.Dialer{
		Params: params,
		Logger: a.log,
		KeySource: func(ctx context.Context, gatewayURL string) (string, error) {
			return gateway.FetchPublicKey(ctx, gatewayURL, nil)
		},
	}
	if a.cfg.GatewayURL == "" {
		if dialer.Engine, err = a.localEngine(); err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
	}

	client, err := fhevm.NewClient(a.cfg.Network(),
		fhevm.WithDialer(dialer),
		fhevm.WithGatewayConnector(gateway.Connector{Options: []gateway.Option{gateway.WithLogger(a.log)}}),
		fhevm.WithLogger(a.log),
	)
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx, provider); err != nil {
		return nil, err
	}
	return client, nil
}

func newEncryptCmd(a *app) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a typed value and print the ciphertext as hex",
		Long: `Encrypt a typed value. With a gateway configured the value is encrypted
under the gateway's public key and registered to PRIVATE_KEY's address,
the only address the gateway will decrypt it for.`,
		Example: `  fhevm encrypt --type uint8 42
  fhevm encrypt --type bool true
  fhevm encrypt --type address 0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := fhevm.ParseEncryptType(typ)
			if err != nil {
				return err
			}
			value, err := fhevm.Normalize(args[0], t)
			if err != nil {
				return err
			}

			var provider fhevm.Provider
			if a.cfg.GatewayURL != "" {
				s, err := a.cfg.Signer()
				if err != nil {
					return fmt.Errorf("gateway ciphertexts are registered to the signer: %w", err)
				}
				provider = signer.NewProvider(s)
			}

			client, err := a.newClient(cmd.Context(), provider)
			if err != nil {
				return err
			}
			defer client.Reset()

			ev, err := client.Encrypt(cmd.Context(), value, t)
			if err != nil {
				return err
			}
			a.log.Debug("encrypted value", zap.Stringer("type", t), zap.Int("bytes", len(ev.Data)))
			fmt.Fprintln(a.out, fhevm.FormatEncryptedValue(ev))
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(fhevm.TypeUint64), "Encryption type: uint8, uint16, uint32, uint64, bool or address")
	return cmd
}

func newDecryptCmd(a *app) *cobra.Command {
	var (
		contract    string
		user        string
		verifyChain bool
	)
	cmd := &cobra.Command{
		Use:   "decrypt <ciphertext>",
		Short: "Decrypt a ciphertext as the configured private key",
		Long: `Decrypt a hex ciphertext. The request is signed with PRIVATE_KEY and,
with a gateway configured, sent to the gateway for decryption. The user
address defaults to the signer's address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.cfg.Signer()
			if err != nil {
				return err
			}
			if contract == "" {
				contract = a.cfg.ContractAddress
			}
			if contract == "" {
				return errors.New("a contract address is required: pass --contract or set CONTRACT_ADDRESS")
			}
			if user == "" {
				addr, err := s.Address(ctx)
				if err != nil {
					return err
				}
				user = addr.Hex()
			}

			var provider fhevm.Provider = signer.NewProvider(s)
			if verifyChain {
				rpc, err := signer.DialRPC(ctx, a.cfg.RPCURL, s)
				if err != nil {
					return err
				}
				defer rpc.Close()
				provider = rpc
			}

			client, err := a.newClient(ctx, provider)
			if err != nil {
				return err
			}
			defer client.Reset()

			plaintext, err := client.Decrypt(ctx, fhevm.DecryptionRequest{
				ContractAddress: contract,
				UserAddress:     user,
				Ciphertext:      args[0],
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, displayPlaintext(args[0], plaintext))
			return nil
		},
	}
	cmd.Flags().StringVar(&contract, "contract", "", "Contract holding the ciphertext (default CONTRACT_ADDRESS)")
	cmd.Flags().StringVar(&user, "user", "", "User the decryption is requested for (default the signer address)")
	cmd.Flags().BoolVar(&verifyChain, "verify-chain", false, "Check the RPC endpoint's chain id before decrypting")
	return cmd
}

// displayPlaintext formats plaintext by the type tag in the ciphertext
// header, falling back to decimal.
func displayPlaintext(ciphertext string, plaintext *big.Int) string {
	data, err := fhevm.DecodeHex(ciphertext)
	if err != nil {
		return plaintext.String()
	}
	ft, err := lattice.PeekType(data)
	if err != nil {
		return plaintext.String()
	}
	t, ok := ft.EncryptType()
	if !ok {
		return plaintext.String()
	}
	return fmt.Sprint(fhevm.FormatDecryptedValue(plaintext, t))
}

func newPubkeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the network public key as hex",
		Long: `Print the public key values are encrypted under: the gateway's key when
GATEWAY_URL is set, otherwise the local key in the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.newClient(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer client.Reset()

			pk, err := client.PublicKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, pk)
			return nil
		},
	}
}
