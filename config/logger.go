// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"github.com/luxfi/log"
)

// NewLogger returns a JSON logger at the configured level.
func (c *Config) NewLogger(name string) (log.Logger, error) {
	level, err := log.ToLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return log.NewLogger(
		name,
		*log.NewWrappedCore(
			level,
			os.Stdout,
			log.JSON.ConsoleEncoder(),
		),
	), nil
}
