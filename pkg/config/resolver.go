package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"
)

const (
	// DefaultDebugPort is the remote debugging port used when none is configured
	DefaultDebugPort = 9222

	// DefaultOutputDir is where reports are written when no directory is configured
	DefaultOutputDir = "/home/chrome/reports"

	// QuietFlag is appended to the Lighthouse params unless verbosity was requested
	QuietFlag = "--quiet"

	// ChromePathEnv overrides the browser executable when set and non-empty
	ChromePathEnv = "CHROME_PATH"

	remoteDebuggingFlag = "--remote-debugging-port"
)

// EffectiveConfig is the flat configuration for a single run. It is built
// by Resolve and must be treated as read-only.
type EffectiveConfig struct {
	DebugPort   int
	OutputDir   string
	HTML        bool
	AuditParams string
	Verbose     bool

	// LaunchArgs are the Chromium switches, always ending with the
	// remote debugging port switch.
	LaunchArgs []string

	// ExecutablePath is empty when the launcher should pick its own browser.
	ExecutablePath string

	// LaunchFlags are the passthrough launch keys. Flags given without a
	// value map to "true".
	LaunchFlags map[string]string
}

// envOverrides are the settings read from the process environment.
type envOverrides struct {
	ChromePath null.String `envconfig:"CHROME_PATH"`
}

// Resolver turns layered RawOptions into an EffectiveConfig.
type Resolver struct {
	lookupEnv   func(string) (string, bool)
	diagnostics io.Writer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLookupEnv replaces the environment lookup, os.LookupEnv by default.
func WithLookupEnv(lookup func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.lookupEnv = lookup
	}
}

// WithDiagnostics sets where diagnostic lines are written, os.Stderr by default.
func WithDiagnostics(w io.Writer) ResolverOption {
	return func(r *Resolver) {
		r.diagnostics = w
	}
}

// NewResolver creates a resolver reading the real environment.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookupEnv:   os.LookupEnv,
		diagnostics: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve merges raw on top of the built-in defaults and derives the
// launch and audit settings from the result.
func (r *Resolver) Resolve(raw RawOptions) EffectiveConfig {
	merged := defaultOptions().Apply(raw)

	cfg := EffectiveConfig{
		DebugPort: int(merged.Main.Port.Int64),
		OutputDir: merged.Lighthouse.OutputDirectory.String,
		HTML:      merged.Lighthouse.HTML.Bool,
	}

	verbosity := merged.Main.Verbose.Int64
	cfg.Verbose = verbosity > 1
	cfg.AuditParams = strings.TrimSpace(merged.Lighthouse.Params.String)
	if verbosity < 1 {
		cfg.AuditParams = joinParams(cfg.AuditParams, QuietFlag)
	}

	cfg.LaunchFlags = ParsePassthrough(merged.Unknown)
	cfg.ExecutablePath = cfg.LaunchFlags["executablePath"]

	args := strings.Fields(merged.Main.ChromiumParams.String)
	cfg.LaunchArgs = append(args, fmt.Sprintf("%s=%d", remoteDebuggingFlag, cfg.DebugPort))

	var env envOverrides
	if err := envconfig.Process("", &env, r.lookupEnv); err != nil {
		fmt.Fprintf(r.diagnostics, "Ignoring environment overrides: %v\n", err)
	}
	if env.ChromePath.Valid && env.ChromePath.String != "" {
		fmt.Fprintln(r.diagnostics, "Chrome bin path configured through environment variable:", env.ChromePath.String)
		cfg.ExecutablePath = env.ChromePath.String
	}

	return cfg
}

// Resolve resolves raw with a default Resolver.
func Resolve(raw RawOptions) EffectiveConfig {
	return NewResolver().Resolve(raw)
}

func joinParams(params, extra string) string {
	if params == "" {
		return extra
	}
	return params + " " + extra
}
