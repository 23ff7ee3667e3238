// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
)

var errUnknownAction = errors.New("action must be bridge, swap or cancel")

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Encode, decode and identify router messages",
	}
	cmd.AddCommand(newEncodeCmd(), newDecodeCmd(), newIDCmd())
	return cmd
}

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a router message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			actionName, _ := flags.GetString("action")
			nonce, _ := flags.GetUint64("nonce")
			source, _ := flags.GetUint64("source-chain")
			dest, _ := flags.GetUint64("dest-chain")
			usd, _ := flags.GetString("usd")
			sender, _ := flags.GetString("sender")
			receiver, _ := flags.GetString("receiver")
			details, _ := flags.GetString("details")

			action, err := parseAction(actionName)
			if err != nil {
				return err
			}
			usdValue, err := uint256.FromDecimal(usd)
			if err != nil {
				return fmt.Errorf("invalid usd value %q: %w", usd, err)
			}
			senderAddr, err := parseAddress(sender)
			if err != nil {
				return err
			}
			receiverAddr, err := parseAddress(receiver)
			if err != nil {
				return err
			}
			detailBytes := []byte{}
			if details != "" {
				if detailBytes, err = hexutil.Decode(details); err != nil {
					return fmt.Errorf("invalid details: %w", err)
				}
			}

			msg := &xroute.Message{
				ActionType:         action,
				Nonce:              nonce,
				SourceChainID:      source,
				DestinationChainID: dest,
				USDValue:           usdValue,
				Sender:             senderAddr,
				Receiver:           receiverAddr,
				Details:            detailBytes,
			}
			encoded, err := msg.Encode()
			if err != nil {
				return err
			}
			id, err := msg.ID()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID: %s\n", id)
			fmt.Fprintf(out, "Encoded: %s\n", hexutil.Encode(encoded))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringP("action", "a", "bridge", "Action type (bridge, swap, cancel)")
	flags.Uint64("nonce", 1, "Sender nonce")
	flags.Uint64P("source-chain", "s", 0, "Source chain id")
	flags.Uint64P("dest-chain", "d", 0, "Destination chain id")
	flags.String("usd", "0", "USD value with six decimals")
	flags.String("sender", "", "Sender address")
	flags.String("receiver", "", "Receiver address")
	flags.String("details", "", "Action details (hex)")
	_ = cmd.MarkFlagRequired("source-chain")
	_ = cmd.MarkFlagRequired("dest-chain")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("receiver")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode an encoded router message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hexutil.Decode(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			msg, id, err := xroute.Identify(data)
			if err != nil {
				return err
			}
			printMessage(cmd.OutOrStdout(), msg)
			fmt.Fprintf(cmd.OutOrStdout(), "ID: %s\n", id)
			return nil
		},
	}
	return cmd
}

func newIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id <hex>",
		Short: "Print the identifier of an encoded router message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hexutil.Decode(args[0])
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			_, id, err := xroute.Identify(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	return cmd
}

func printMessage(out io.Writer, msg *xroute.Message) {
	fmt.Fprintf(out, "Action: %s\n", msg.ActionType)
	fmt.Fprintf(out, "Nonce: %d\n", msg.Nonce)
	fmt.Fprintf(out, "Source Chain: %d\n", msg.SourceChainID)
	fmt.Fprintf(out, "Destination Chain: %d\n", msg.DestinationChainID)
	fmt.Fprintf(out, "USD Value: %s\n", msg.USDValue.Dec())
	fmt.Fprintf(out, "Sender: %s\n", msg.Sender)
	fmt.Fprintf(out, "Receiver: %s\n", msg.Receiver)

	switch msg.ActionType {
	case xroute.ActionBridge:
		if d, err := payload.ParseBridgeDetails(msg.Details); err == nil {
			fmt.Fprintf(out, "Source Token: %s\n", d.SourceToken)
			fmt.Fprintf(out, "Source Amount: %s\n", d.SourceAmount.Dec())
			fmt.Fprintf(out, "Destination Token: %s\n", d.DestinationToken)
			fmt.Fprintf(out, "Destination Amount: %s\n", d.DestinationAmount.Dec())
			return
		}
	case xroute.ActionSwap:
		if d, err := payload.ParseSwapDetails(msg.Details); err == nil {
			fmt.Fprintf(out, "Source Token: %s\n", d.SourceToken)
			fmt.Fprintf(out, "Source Amount: %s\n", d.SourceAmount.Dec())
			fmt.Fprintf(out, "Destination Token: %s\n", d.DestinationToken)
			fmt.Fprintf(out, "Min Amount Out: %s\n", d.MinAmountOut.Dec())
			return
		}
	}
	fmt.Fprintf(out, "Details: %s\n", hexutil.Encode(msg.Details))
}

func parseAction(name string) (xroute.ActionType, error) {
	for _, a := range []xroute.ActionType{xroute.ActionBridge, xroute.ActionSwap, xroute.ActionCancel} {
		if strings.EqualFold(name, a.String()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownAction, name)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
