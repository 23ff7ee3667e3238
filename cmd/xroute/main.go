// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
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

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xroute",
		Short: "Cross-chain message router CLI",
		Long: `xroute encodes and inspects cross-chain router messages, evaluates the
settlement pricing functions and runs a local devnet round trip through the
relayer.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newMessageCmd(),
		newQuoteCmd(),
		newTiersCmd(),
		newSimulateCmd(),
	)
	return rootCmd
}
