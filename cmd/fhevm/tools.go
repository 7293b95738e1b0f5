// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/signer"
)

func newValidateCmd(a *app) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "validate <value>",
		Short: "Check a value against an encryption type",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			t, err := fhevm.ParseEncryptType(typ)
			if err != nil {
				return err
			}
			v, err := fhevm.Normalize(args[0], t)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "valid %s: %v\n", t, v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(fhevm.TypeUint64), "Encryption type")
	return cmd
}

func newBoundsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bounds",
		Short: "Print the value domain of every encryption type",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			table := tablewriter.NewWriter(a.out)
			table.SetHeader([]string{"Type", "Bits", "Min", "Max"})
			for _, t := range fhevm.AllTypes() {
				lo, hi := "-", "-"
				if b, ok := fhevm.BoundsOf(t); ok {
					lo, hi = fmt.Sprint(b.Min), fmt.Sprint(b.Max)
				} else if t == fhevm.TypeAddress {
					lo, hi = "0x"+strings.Repeat("0", 40), "0x"+strings.Repeat("f", 40)
				}
				table.Append([]string{t.String(), strconv.Itoa(t.Bits()), lo, hi})
			}
			table.Render()
			return nil
		},
	}
}

func newKeygenCmd(a *app) *cobra.Command {
	var account bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the network key pair in the data directory",
		Long: `Create the FHE key pair under <data-dir>/keys, keeping an existing pair.
With --account it instead generates an Ethereum account for signing
decryption requests and prints its address and private key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account {
				s, err := signer.Generate()
				if err != nil {
					return err
				}
				addr, err := s.Address(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "address:     %s\nprivate key: %s\n", addr.Hex(), s.PrivateKeyHex())
				return nil
			}

			params, err := a.cfg.Parameters()
			if err != nil {
				return err
			}
			dir := filepath.Join(a.cfg.DataDir, "keys")
			_, pk, err := lattice.LoadOrGenerateKeys(params, dir)
			if err != nil {
				return err
			}
			pkHex, err := pk.Hex()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "keys:       %s\nparam set:  %s\npublic key: %s...\n", dir, a.cfg.ParamSet, pkHex[:min(len(pkHex), 66)])
			return nil
		},
	}
	cmd.Flags().BoolVar(&account, "account", false, "Generate a signing account instead of FHE keys")
	return cmd
}
