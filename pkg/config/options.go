// Package config resolves layered run options into the flat configuration
// consumed by the browser launcher and the audit runner.
package config

import (
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// MainOptions holds the general run settings.
type MainOptions struct {
	// Port is the Chromium remote debugging port Lighthouse attaches to
	Port null.Int

	// Verbose is a repeat count: 1 keeps Lighthouse output, 2 or more
	// also makes the batch runner verbose
	Verbose null.Int

	// ChromiumParams is a whitespace separated list of Chromium switches
	ChromiumParams null.String
}

// LighthouseOptions holds the audit runner settings.
type LighthouseOptions struct {
	OutputDirectory null.String
	HTML            null.Bool
	Params          null.String
}

// RawOptions is one layer of user supplied configuration. Only valid
// fields take part in resolution; everything else falls back to defaults.
type RawOptions struct {
	Main       MainOptions
	Lighthouse LighthouseOptions

	// Unknown holds passthrough tokens in the order they were given.
	Unknown []string
}

// Apply overlays the valid fields of other on top of o and returns the
// result. Passthrough tokens are parsed per layer and merged by key, a key
// set by other replacing the one from o.
func (o RawOptions) Apply(other RawOptions) RawOptions {
	if other.Main.Port.Valid {
		o.Main.Port = other.Main.Port
	}
	if other.Main.Verbose.Valid {
		o.Main.Verbose = other.Main.Verbose
	}
	if other.Main.ChromiumParams.Valid {
		o.Main.ChromiumParams = other.Main.ChromiumParams
	}
	if other.Lighthouse.OutputDirectory.Valid {
		o.Lighthouse.OutputDirectory = other.Lighthouse.OutputDirectory
	}
	if other.Lighthouse.HTML.Valid {
		o.Lighthouse.HTML = other.Lighthouse.HTML
	}
	if other.Lighthouse.Params.Valid {
		o.Lighthouse.Params = other.Lighthouse.Params
	}
	if len(other.Unknown) > 0 {
		o.Unknown = MergePassthrough(o.Unknown, other.Unknown)
	}
	return o
}

// Validate checks the values that cannot be resolved meaningfully.
func (o RawOptions) Validate() error {
	if o.Main.Port.Valid && (o.Main.Port.Int64 < 1 || o.Main.Port.Int64 > 65535) {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", o.Main.Port.Int64)
	}
	if o.Main.Verbose.Valid && o.Main.Verbose.Int64 < 0 {
		return fmt.Errorf("verbosity cannot be negative")
	}
	return nil
}

// defaultOptions returns the built-in layer. Values are marked invalid the
// same way explicitly unset fields are, so Apply never lets them win.
func defaultOptions() RawOptions {
	return RawOptions{
		Main: MainOptions{
			Port:           null.NewInt(DefaultDebugPort, false),
			Verbose:        null.NewInt(0, false),
			ChromiumParams: null.NewString("", false),
		},
		Lighthouse: LighthouseOptions{
			OutputDirectory: null.NewString(DefaultOutputDir, false),
			HTML:            null.NewBool(false, false),
			Params:          null.NewString("", false),
		},
	}
}
