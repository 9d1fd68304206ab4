package main

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"

	"github.com/abibridge/abibridge/internal/convert"
	"github.com/abibridge/abibridge/internal/stub"
)

// tuningConfig is the optional advanced-tuning file a --config flag may
// point at. Its fields never change conversion semantics under their
// defaults: they exist to exercise a non-default GDT layout or a
// narrower function-list size limit, not to alter the required CLI
// contract of three positional arguments.
type tuningConfig struct {
	ProtectedModeSelector     uint16 `mapstructure:"protected_mode_selector" default:"35"`
	ProtectedModeDataSelector uint16 `mapstructure:"protected_mode_data_selector" default:"43"`
	LongModeSelector          uint16 `mapstructure:"long_mode_selector" default:"51"`
	MaxFunctions              int    `mapstructure:"max_functions" default:"1023"`
}

// loadOptions returns nil, nil for an empty path, letting convert.Convert
// fall back to its own defaults; otherwise it reads path through viper,
// fills unset fields via creasty/defaults, and decodes into a
// tuningConfig via viper's mapstructure-based Unmarshal.
func loadOptions(path string) (*convert.Options, error) {
	if path == "" {
		return nil, nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from '%s': %w", path, err)
	}

	cfg := &tuningConfig{}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &convert.Options{
		Selectors: stub.Selectors{
			Protected:     cfg.ProtectedModeSelector,
			ProtectedData: cfg.ProtectedModeDataSelector,
			Long:          cfg.LongModeSelector,
		},
		MaxFunctions: cfg.MaxFunctions,
	}, nil
}
