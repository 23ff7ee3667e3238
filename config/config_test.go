// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/xroute/settlement"
)

const devnetFile = "testdata/devnet.json"

func loadDevnet(t *testing.T, args ...string) Config {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(append([]string{"--" + ConfigFileKey, devnetFile}, args...)))

	v, err := BuildViper(fs)
	require.NoError(t, err)
	cfg, err := NewConfig(v)
	require.NoError(t, err)
	return cfg
}

func TestLoadDevnet(t *testing.T) {
	require := require.New(t)

	cfg := loadDevnet(t)
	require.Equal("info", cfg.LogLevel)
	require.Equal(uint64(20), cfg.PollIntervalMS)
	require.Equal(defaultMaxBatchSize, cfg.MaxBatchSize)
	require.Len(cfg.Chains, 2)
	require.Equal(uint64(2), cfg.Chains[1].ChainID)

	keys, err := cfg.OperatorKeys()
	require.NoError(err)
	require.Len(keys, 3)

	require.Equal(AuthorizerOperators, cfg.Authorizer)
	blsKeys, err := cfg.ValidatorKeys()
	require.NoError(err)
	require.Len(blsKeys, 4)

	usdc, err := cfg.Token("USDC")
	require.NoError(err)
	require.True(usdc.Locks("chain-a"))
	require.False(usdc.Locks("chain-b"))

	addr, err := cfg.TokenAddress("XRT", "chain-b")
	require.NoError(err)
	require.Equal(common.HexToAddress("0x00000000000000000000000000000000000b00c2"), addr)

	fees, err := cfg.FeeTierTable()
	require.NoError(err)
	require.Equal(2, fees.Len())
}

func TestFlagsOverrideFile(t *testing.T) {
	cfg := loadDevnet(t, "--"+LogLevelKey, "debug")
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvFile(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(os.WriteFile(envFile, []byte("STATE_DIR="+dir+"\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STATE_DIR") })

	cfg := loadDevnet(t, "--"+EnvFileKey, envFile)
	require.Equal(dir, cfg.StateDir)
}

func TestBuildViperRequiresConfigFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(nil))

	_, err := BuildViper(fs)
	require.ErrorIs(t, err, ErrNoConfigFile)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "no chains",
			mutate:  func(c *Config) { c.Chains = nil },
			wantErr: ErrNoChains,
		},
		{
			name:    "duplicate chain id",
			mutate:  func(c *Config) { c.Chains[1].ChainID = c.Chains[0].ChainID },
			wantErr: ErrDuplicateChain,
		},
		{
			name:    "bad router address",
			mutate:  func(c *Config) { c.BridgeRouter = "router" },
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "threshold above total weight",
			mutate:  func(c *Config) { c.Operators.Threshold = 4 },
			wantErr: ErrInvalidOperators,
		},
		{
			name:    "bad operator key",
			mutate:  func(c *Config) { c.Operators.PrivateKeys[0] = "0xzz" },
			wantErr: ErrInvalidOperators,
		},
		{
			name:    "unknown authorizer",
			mutate:  func(c *Config) { c.Authorizer = "multisig" },
			wantErr: ErrInvalidAuthorizer,
		},
		{
			name: "short validator seed",
			mutate: func(c *Config) {
				c.Authorizer = AuthorizerBLS
				c.Validators.Seeds[0] = "0x01"
			},
			wantErr: ErrInvalidValidators,
		},
		{
			name: "validator quorum above one",
			mutate: func(c *Config) {
				c.Authorizer = AuthorizerBLS
				c.Validators.QuorumNum = c.Validators.QuorumDen + 1
			},
			wantErr: ErrInvalidValidators,
		},
		{
			name:    "duplicate token",
			mutate:  func(c *Config) { c.Tokens[1].Symbol = c.Tokens[0].Symbol },
			wantErr: ErrDuplicateToken,
		},
		{
			name:    "unknown custody",
			mutate:  func(c *Config) { c.Tokens[0].Custody = "escrow" },
			wantErr: ErrInvalidCustody,
		},
		{
			name:    "token on unknown chain",
			mutate:  func(c *Config) { c.Tokens[0].Addresses["chain-z"] = c.Tokens[0].Addresses["chain-a"] },
			wantErr: ErrUnknownChain,
		},
		{
			name:    "unknown settlement token",
			mutate:  func(c *Config) { c.Chains[0].SettlementToken = "DAI" },
			wantErr: ErrUnknownToken,
		},
		{
			name:    "pool fee",
			mutate:  func(c *Config) { c.Pools[0].Fee = settlement.BasisPoints },
			wantErr: settlement.ErrInvalidFee,
		},
		{
			name:    "bad amount",
			mutate:  func(c *Config) { c.Accounts[0].Amount = "ten" },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "unsorted fee tiers",
			mutate:  func(c *Config) { c.FeeTiers = []TierConfig{{Threshold: "5", Rate: 1}, {Threshold: "4", Rate: 1}, {Rate: 1}} },
			wantErr: settlement.ErrTiersNotSorted,
		},
		{
			name:    "tvl percentage",
			mutate:  func(c *Config) { c.TVLPercentage = settlement.BasisPoints + 1 },
			wantErr: settlement.ErrRateOutOfBounds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDevnet(t)
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidateBLS(t *testing.T) {
	cfg := loadDevnet(t, "--"+AuthorizerKey, AuthorizerBLS)
	require.Equal(t, AuthorizerBLS, cfg.Authorizer)
	require.NoError(t, cfg.Validate())
}

func TestParseAmount(t *testing.T) {
	require := require.New(t)

	v, err := ParseAmount("")
	require.NoError(err)
	require.True(v.IsZero())

	v, err = ParseAmount("1000000000000000000000")
	require.NoError(err)
	require.Equal("1000000000000000000000", v.Dec())

	_, err = ParseAmount("1e6")
	require.ErrorIs(err, ErrInvalidAmount)
}
