// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrNoConfigFile = errors.New("config file not set")

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper builds the viper instance. Variables from the env file are
// loaded into the process environment first, without overriding what is
// already set. The config file must then be provided via the command line
// flag or environment variable.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if err := loadEnvFile(v.GetString(EnvFileKey)); err != nil {
		return nil, err
	}
	if err := v.BindEnv(ConfigFileKey, ConfigFileEnvKey); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) || v.GetString(ConfigFileKey) == "" {
		return nil, ErrNoConfigFile
	}

	v.SetConfigFile(v.GetString(ConfigFileKey))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v, nil
}

// loadEnvFile loads path when it exists. A missing default file is not an
// error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(PollIntervalMSKey, defaultPollIntervalMS)
	v.SetDefault(RetryTimeoutMSKey, defaultRetryTimeoutMS)
	v.SetDefault(MaxBatchSizeKey, defaultMaxBatchSize)
	v.SetDefault(TVLPercentageKey, defaultTVLPercentage)
	v.SetDefault(AuthorizerKey, defaultAuthorizer)
}

// BuildConfig constructs the devnet config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	cfg.StateDir = os.ExpandEnv(cfg.StateDir)
	return cfg, nil
}

// AddFlags registers the flags BuildViper binds.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "path to the devnet JSON config file")
	fs.String(EnvFileKey, ".env", "dotenv file loaded before the environment is read")
	fs.String(LogLevelKey, defaultLogLevel, "log level")
	fs.String(StateDirKey, "", "directory for bolt state files; in-memory when empty")
	fs.String(AuthorizerKey, defaultAuthorizer, "batch authorizer: operators or bls")
}
