// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// field returns the value printed after "name: ".
func field(t *testing.T, out, name string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), name+": "); ok {
			return v
		}
	}
	t.Fatalf("no %q in output:\n%s", name, out)
	return ""
}

func TestMessageEncodeDecode(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "message", "encode",
		"--action", "swap",
		"--nonce", "7",
		"--source-chain", "1",
		"--dest-chain", "2",
		"--usd", "1500000",
		"--sender", "0x1000000000000000000000000000000000000001",
		"--receiver", "0x2000000000000000000000000000000000000002",
		"--details", "0xdeadbeef",
	)
	require.NoError(err)
	encoded := field(t, out, "Encoded")
	id := field(t, out, "ID")

	out, err = run(t, "message", "decode", encoded)
	require.NoError(err)
	require.Equal("swap", field(t, out, "Action"))
	require.Equal("7", field(t, out, "Nonce"))
	require.Equal("1500000", field(t, out, "USD Value"))
	require.Equal("0xdeadbeef", field(t, out, "Details"))
	require.Equal(id, field(t, out, "ID"))

	out, err = run(t, "message", "id", encoded)
	require.NoError(err)
	require.Equal(id, strings.TrimSpace(out))
}

func TestMessageRejects(t *testing.T) {
	require := require.New(t)

	_, err := run(t, "message", "encode", "--action", "mint",
		"--source-chain", "1", "--dest-chain", "2",
		"--sender", "0x1000000000000000000000000000000000000001",
		"--receiver", "0x2000000000000000000000000000000000000002",
	)
	require.ErrorIs(err, errUnknownAction)

	_, err = run(t, "message", "decode", "0x00")
	require.Error(err)
}

func TestQuote(t *testing.T) {
	require := require.New(t)

	// 1000 in against 10000/20000 at 0.3%
	out, err := run(t, "quote", "out", "--reserve-in", "10000", "--reserve-out", "20000", "--amount", "1000")
	require.NoError(err)
	require.Equal("1813", strings.TrimSpace(out))

	out, err = run(t, "quote", "in", "--reserve-in", "10000", "--reserve-out", "20000", "--amount", "1813")
	require.NoError(err)
	require.Equal("1000", strings.TrimSpace(out))

	_, err = run(t, "quote", "out", "--reserve-in", "10000", "--reserve-out", "20000", "--amount", "1000", "--fee", "10000")
	require.Error(err)
}

func TestTiers(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "tiers", "100", "--table", "100:50,:10")
	require.NoError(err)
	require.Equal("10", field(t, out, "Fee Rate"))
	require.Equal("50", field(t, out, "Subsidy Rate"))

	_, err = run(t, "tiers", "100", "--table", "100")
	require.Error(err)
}

func TestSimulateBridge(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "simulate", "--config-file", "../../config/testdata/devnet.json", "--log-level", "error")
	require.NoError(err)
	require.Equal("500000", field(t, out, "Fee"))
	require.Equal("COMPLETED", field(t, out, "Received Record"))
	require.Equal("SENT", field(t, out, "Sent Record"))
	require.Contains(out, "chain-a -> chain-b: bridge COMPLETED")
}

func TestSimulateSwap(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "simulate", "--config-file", "../../config/testdata/devnet.json", "--log-level", "error",
		"--swap", "--token", "XRT", "--amount", "10000000000000000000")
	require.NoError(err)
	require.Equal("19900000", field(t, out, "USD Value"))
	require.Equal("COMPLETED", field(t, out, "Received Record"))
}
