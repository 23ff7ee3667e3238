// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"io"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/xroute/config"
	"github.com/luxfi/xroute/devnet"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/relayer"
	"github.com/luxfi/xroute/router"
)

const maxPasses = 4

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a bridge or swap round trip on a local devnet",
		Long: `Build the devnet described by the config file, send one bridge or swap
message and relay until nothing is left in flight. The resulting records and
balances are printed.`,
		RunE: runSimulate,
	}
	config.AddFlags(cmd.Flags())
	flags := cmd.Flags()
	flags.String("from", "chain-a", "Source chain name")
	flags.String("to", "chain-b", "Destination chain name")
	flags.String("token", "USDC", "Source token symbol")
	flags.String("dest-token", "", "Destination token symbol; the source symbol when empty")
	flags.String("amount", "100000000", "Source amount in token units")
	flags.String("sender", "0x00000000000000000000000000000000000000b1", "Sender address")
	flags.String("receiver", "0x00000000000000000000000000000000000000b2", "Receiver address")
	flags.Bool("swap", false, "Send through the swap router")
	return cmd
}

type simulation struct {
	net                *devnet.Devnet
	src, dst           *devnet.Chain
	token, destToken   string
	sender, receiver   common.Address
	srcToken, dstToken common.Address
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger("xroute")
	if err != nil {
		return err
	}
	net, err := devnet.New(logger, &cfg)
	if err != nil {
		return err
	}
	defer net.Close()

	relay, err := net.NewRelayer(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	sim, err := newSimulation(cmd, net)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	amountStr, _ := flags.GetString("amount")
	amount, err := config.ParseAmount(amountStr)
	if err != nil {
		return err
	}
	swap, _ := flags.GetBool("swap")

	var (
		res     *router.SendResult
		records recordReader
	)
	if swap {
		if sim.src.Swap == nil || sim.dst.Swap == nil {
			return fmt.Errorf("no swap router on %s or %s", sim.src.Name, sim.dst.Name)
		}
		res, err = sim.src.SendSwap(&router.SwapRequest{
			Sender:             sim.sender,
			DestinationChainID: sim.dst.ID,
			Receiver:           sim.receiver,
			Details: payload.SwapDetails{
				SourceToken:      sim.srcToken,
				SourceAmount:     amount,
				DestinationToken: sim.dstToken,
			},
		})
		records = recordReader{sent: sim.src.Swap, received: sim.dst.Swap}
	} else {
		res, err = sim.src.SendBridge(&router.BridgeRequest{
			Sender:             sim.sender,
			DestinationChainID: sim.dst.ID,
			Receiver:           sim.receiver,
			Details: payload.BridgeDetails{
				SourceToken:      sim.srcToken,
				SourceAmount:     amount,
				DestinationToken: sim.dstToken,
			},
		})
		records = recordReader{sent: sim.src.Bridge, received: sim.dst.Bridge}
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sent %s from %s to %s\n", res.MessageID, sim.src.Name, sim.dst.Name)
	fmt.Fprintf(out, "  Fee: %s\n", res.Fee.Dec())
	fmt.Fprintf(out, "  USD Value: %s\n", res.Message.USDValue.Dec())

	for pass := 1; pass <= maxPasses; pass++ {
		report, err := relay.RelayOnce(cmd.Context())
		if err != nil {
			return err
		}
		if len(report.Outcomes) == 0 {
			break
		}
		printReport(out, pass, report)
	}
	if err := records.print(out, res.MessageID); err != nil {
		return err
	}
	return sim.printBalances(out)
}

func newSimulation(cmd *cobra.Command, net *devnet.Devnet) (*simulation, error) {
	flags := cmd.Flags()
	from, _ := flags.GetString("from")
	to, _ := flags.GetString("to")
	sim := &simulation{net: net}
	sim.token, _ = flags.GetString("token")
	sim.destToken, _ = flags.GetString("dest-token")
	if sim.destToken == "" {
		sim.destToken = sim.token
	}

	var err error
	if sim.src, err = net.Chain(from); err != nil {
		return nil, err
	}
	if sim.dst, err = net.Chain(to); err != nil {
		return nil, err
	}
	if sim.srcToken, err = net.TokenAddress(sim.token, from); err != nil {
		return nil, err
	}
	if sim.dstToken, err = net.TokenAddress(sim.destToken, to); err != nil {
		return nil, err
	}
	sender, _ := flags.GetString("sender")
	if sim.sender, err = config.ParseAddress(sender); err != nil {
		return nil, err
	}
	receiver, _ := flags.GetString("receiver")
	if sim.receiver, err = config.ParseAddress(receiver); err != nil {
		return nil, err
	}
	return sim, nil
}

func (s *simulation) printBalances(out io.Writer) error {
	fmt.Fprintln(out, "Balances:")
	for _, b := range []struct {
		chain, symbol string
		holder        common.Address
	}{
		{s.src.Name, s.token, s.sender},
		{s.dst.Name, s.destToken, s.receiver},
	} {
		bal, err := s.net.Balance(b.chain, b.symbol, b.holder)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s %s %s: %s\n", b.chain, b.holder, b.symbol, bal.Dec())
	}
	return nil
}

func printReport(out io.Writer, pass int, report *relayer.Report) {
	fmt.Fprintf(out, "Relay pass %d:\n", pass)
	for _, o := range report.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "  %s -> %s: failed: %v\n", o.SourceChain, o.DestinationChain, o.Err)
			continue
		}
		fmt.Fprintf(out, "  %s -> %s: %s %s", o.SourceChain, o.DestinationChain, o.Result.Action, o.Result.Status)
		if o.Result.Reason != "" {
			fmt.Fprintf(out, " (%s)", o.Result.Reason)
		}
		fmt.Fprintln(out)
	}
}

type sentRecords interface {
	SentMessage(id ids.ID) (*router.SentMessage, error)
}

type receivedRecords interface {
	ReceivedMessage(id ids.ID) (*router.ReceivedMessage, error)
}

// recordReader prints both ends of one message.
type recordReader struct {
	sent     sentRecords
	received receivedRecords
}

func (r recordReader) print(out io.Writer, id ids.ID) error {
	sent, err := r.sent.SentMessage(id)
	if err != nil {
		return err
	}
	received, err := r.received.ReceivedMessage(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent Record: %s\n", sent.Status)
	fmt.Fprintf(out, "Received Record: %s\n", received.Status)
	return nil
}
