// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/luxfi/xroute/settlement"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Evaluate constant-product quotes",
	}
	cmd.AddCommand(
		newQuoteSideCmd("out", "Output bought by an exact input", settlement.QuoteAmountOut),
		newQuoteSideCmd("in", "Input needed for an exact output", settlement.QuoteAmountIn),
	)
	return cmd
}

type quoteFunc func(reserveIn, reserveOut, amount *uint256.Int, feeBps uint64) (*uint256.Int, error)

func newQuoteSideCmd(use, short string, quote quoteFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			values := make([]*uint256.Int, 0, 3)
			for _, name := range []string{"reserve-in", "reserve-out", "amount"} {
				s, _ := flags.GetString(name)
				v, err := uint256.FromDecimal(s)
				if err != nil {
					return fmt.Errorf("invalid %s %q: %w", name, s, err)
				}
				values = append(values, v)
			}
			fee, _ := flags.GetUint64("fee")

			result, err := quote(values[0], values[1], values[2], fee)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Dec())
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("reserve-in", "", "Reserve of the input token")
	flags.String("reserve-out", "", "Reserve of the output token")
	flags.String("amount", "", "Exact input (out) or exact output (in)")
	flags.Uint64("fee", 30, "Pool fee in basis points")
	for _, name := range []string{"reserve-in", "reserve-out", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newTiersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiers <value>",
		Short: "Look up a USD value in a tier table",
		Long: `Look up a USD value (six decimals) in a tier table given as comma separated
threshold:rate pairs. The last pair may omit its threshold. Fee tables match
the first threshold above the value; subsidy tables the first at or above it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := uint256.FromDecimal(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			spec, _ := cmd.Flags().GetString("table")
			table, err := parseTiers(spec)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fee Rate: %d\n", table.RateBelow(value))
			fmt.Fprintf(out, "Subsidy Rate: %d\n", table.RateAtMost(value))
			return nil
		},
	}
	cmd.Flags().String("table", "", "Tier table, e.g. 10000000000:50,:10")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func parseTiers(spec string) (*settlement.TierTable, error) {
	var tiers []settlement.Tier
	for _, row := range strings.Split(spec, ",") {
		threshold, rate, ok := strings.Cut(strings.TrimSpace(row), ":")
		if !ok {
			return nil, fmt.Errorf("invalid tier %q", row)
		}
		var tier settlement.Tier
		r, err := strconv.ParseUint(rate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tier rate %q: %w", rate, err)
		}
		tier.Rate = r
		if threshold != "" {
			if tier.Threshold, err = uint256.FromDecimal(threshold); err != nil {
				return nil, fmt.Errorf("invalid tier threshold %q: %w", threshold, err)
			}
		}
		tiers = append(tiers, tier)
	}
	return settlement.NewTierTable(tiers)
}
