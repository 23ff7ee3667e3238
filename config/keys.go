// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	EnvFileKey    = "env-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	LogLevelKey       = "log-level"
	StateDirKey       = "state-dir"
	PollIntervalMSKey = "poll-interval-ms"
	RetryTimeoutMSKey = "retry-timeout-ms"
	MaxBatchSizeKey   = "max-batch-size"
	BridgeRouterKey   = "bridge-router"
	SwapRouterKey     = "swap-router"
	AuthorizerKey     = "authorizer"
	OperatorsKey      = "operators"
	ValidatorsKey     = "validators"
	ChainsKey         = "chains"
	TokensKey         = "tokens"
	PoolsKey          = "pools"
	AccountsKey       = "accounts"
	FeeTiersKey       = "fee-tiers"
	SubsidyTiersKey   = "subsidy-tiers"
	USDMaxSubsidyKey  = "usd-max-subsidy"
	TVLPercentageKey  = "tvl-percentage"
	DebtThresholdKey  = "debt-threshold"
)
