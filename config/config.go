// SPDX-License-Identifier: Apache-2.0
// Package config loads a driver.Options from a config file and the
// environment, the way the teacher's own dependency set loads babble's node
// configuration: a private viper instance, one file search path, one env
// prefix, unmarshalled into a plain struct and then translated into the
// package it configures (spec.md §6's "Configuration options consumed").
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/gozwave/core/driver"
)

// FileOptions is the on-disk/env shape of a Driver's tunables: plain values
// viper can unmarshal directly, translated into driver.Options by Load.
type FileOptions struct {
	UserPath           string        `mapstructure:"user_path"`
	SaveConfiguration  bool          `mapstructure:"save_configuration"`
	DriverMaxAttempts  int           `mapstructure:"driver_max_attempts"`
	NotifyTransactions bool          `mapstructure:"notify_transactions"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

func defaultFileOptions() FileOptions {
	return FileOptions{
		UserPath:     ".",
		PollInterval: 30 * time.Second,
	}
}

// Load reads zwdriver.{yaml,json,toml,...} from configDir, overlays any
// ZWDRIVER_-prefixed environment variables, and returns the resulting
// driver.Options. A missing config file is not an error: defaults and
// environment overrides still apply.
func Load(configDir string) (driver.Options, error) {
	v := viper.New()
	v.SetConfigName("zwdriver")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("zwdriver")
	v.AutomaticEnv()

	defaults := defaultFileOptions()
	v.SetDefault("user_path", defaults.UserPath)
	v.SetDefault("save_configuration", defaults.SaveConfiguration)
	v.SetDefault("driver_max_attempts", defaults.DriverMaxAttempts)
	v.SetDefault("notify_transactions", defaults.NotifyTransactions)
	v.SetDefault("poll_interval", defaults.PollInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return driver.Options{}, fmt.Errorf("config: read %s: %w", configDir, err)
		}
	}

	var fo FileOptions
	if err := v.Unmarshal(&fo); err != nil {
		return driver.Options{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return driver.Options{
		UserPath:           fo.UserPath,
		SaveConfiguration:  fo.SaveConfiguration,
		DriverMaxAttempts:  fo.DriverMaxAttempts,
		NotifyTransactions: fo.NotifyTransactions,
		PollInterval:       fo.PollInterval,
	}, nil
}
