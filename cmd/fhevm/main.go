// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// fhevm is the command line client and gateway server for fhevm networks.
//
//	fhevm serve --data-dir ./data --api-port 8448
//	fhevm encrypt --type uint8 42
//	fhevm decrypt --contract 0x... 0x<ciphertext>
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/fhevm/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg config.Config
	log *zap.Logger
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "fhevm",
		Short: "Encrypt and decrypt typed values for fhevm networks",
		Long: `fhevm encrypts uint8, uint16, uint32, uint64, bool and address values
under a network's FHE public key and decrypts them through an
authenticated gateway. It also runs the gateway itself.

Every flag may also be set through the environment (CHAIN_ID, RPC_URL,
GATEWAY_URL, PRIVATE_KEY, ...) or a config file.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newEncryptCmd(a),
		newDecryptCmd(a),
		newPubkeyCmd(a),
		newValidateCmd(a),
		newBoundsCmd(a),
		newKeygenCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return fmt.Errorf("couldn't configure flags: %w", err)
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return fmt.Errorf("couldn't build config: %w", err)
	}
	a.cfg = cfg

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := cfg.LogLevelValue()
	if err != nil {
		return nil, fmt.Errorf("error reading log level from config: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build(zap.Fields(zap.String("service", "fhevm")))
}
