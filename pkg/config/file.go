package config

import (
	"fmt"
	"os"

	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"
)

// fileOptions is the on-disk shape of a configuration file.
type fileOptions struct {
	Main struct {
		Port           *int64  `yaml:"port"`
		Verbose        *int64  `yaml:"verbose"`
		ChromiumParams *string `yaml:"chromium_params"`
	} `yaml:"main"`

	Lighthouse struct {
		OutputDirectory *string `yaml:"output_directory"`
		HTML            *bool   `yaml:"html"`
		Params          *string `yaml:"lighthouse_params"`
	} `yaml:"lighthouse"`

	Passthrough []string `yaml:"passthrough"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (RawOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RawOptions{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses YAML configuration. Keys that are absent stay unset.
func ParseFile(data []byte) (RawOptions, error) {
	var f fileOptions
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RawOptions{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return RawOptions{
		Main: MainOptions{
			Port:           null.IntFromPtr(f.Main.Port),
			Verbose:        null.IntFromPtr(f.Main.Verbose),
			ChromiumParams: null.StringFromPtr(f.Main.ChromiumParams),
		},
		Lighthouse: LighthouseOptions{
			OutputDirectory: null.StringFromPtr(f.Lighthouse.OutputDirectory),
			HTML:            null.BoolFromPtr(f.Lighthouse.HTML),
			Params:          null.StringFromPtr(f.Lighthouse.Params),
		},
		Unknown: f.Passthrough,
	}, nil
}
