package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"github.com/entrhq/lightkeeper/pkg/audit"
	"github.com/entrhq/lightkeeper/pkg/browser"
	"github.com/entrhq/lightkeeper/pkg/config"
	"github.com/entrhq/lightkeeper/pkg/executor"
	"github.com/entrhq/lightkeeper/pkg/logging"
	"github.com/entrhq/lightkeeper/pkg/testcase"
	"github.com/entrhq/lightkeeper/pkg/tracing"
)

// app holds the streams and the extra executor options of one CLI invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// executorOptions are applied after the defaults
	executorOptions []executor.Option

	// passthrough tokens split off the arguments before flag parsing
	passthrough []string

	newLogger func(component string) (*logging.Logger, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, newLogger: logging.NewLogger}
}

// execute runs the CLI and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	known, passthrough := config.SplitPassthrough(args)
	a.passthrough = passthrough

	cmd := a.rootCommand()
	cmd.SetArgs(known)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var cv *executor.ContractViolationError
	if errors.As(err, &cv) {
		// the executor already reported the violation
		return cv.ExitCode()
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return 1
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lightkeeper [module] [flags] [--puppeteer-<key> [value]...]",
		Short: "Run Lighthouse audits against a browser prepared by a test module",
		Long: `Launches Chromium with remote debugging enabled, lets a test module
connect to it (to log in, set cookies, ...) and list the URLs to audit, then
runs Lighthouse against each URL through that browser.

A module is a YAML script file or the name of a registered module. Without a
module, the URLs given with --url are audited as is.

Any --puppeteer-<key> [value] argument is passed to the browser launcher,
for example --puppeteer-headless false or --puppeteer-slowMo 100. The token
after a --puppeteer- key is its value unless it is another flag (negative
numbers count as values), so give boolean keys an explicit value or put them
after the module: "lightkeeper shop.yaml --puppeteer-devtools", not
"lightkeeper --puppeteer-devtools shop.yaml".`,
		Example: `  # Audit two pages with the default settings
  lightkeeper --url https://example.com --url https://example.com/about

  # Log in first, write HTML reports
  lightkeeper shop.yaml --html -o ./reports

  # Use a config file and a system Chrome
  CHROME_PATH=/usr/bin/google-chrome lightkeeper shop.yaml -c lightkeeper.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.Int64P("port", "p", config.DefaultDebugPort, "Chromium remote debugging port")
	flags.CountP("verbose", "v", "verbose output, repeat for Lighthouse batch details")
	flags.String("chromium-params", "", "extra Chromium switches, space separated")
	flags.StringP("output-directory", "o", config.DefaultOutputDir, "directory reports are written to")
	flags.Bool("html", false, "also write HTML reports")
	flags.String("lighthouse-params", "", "extra Lighthouse parameters")
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.StringArrayP("url", "u", nil, "URL to audit when no module is given (repeatable)")
	flags.Duration("timeout", 0, "abort the run after this duration (0 disables)")
	flags.Bool("trace", false, "print OpenTelemetry spans to stderr")
	flags.Bool("version", false, "show version and exit")

	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if showVersion, _ := flags.GetBool("version"); showVersion {
		fmt.Fprintf(a.stdout, "lightkeeper v%s\n", version)
		return nil
	}

	raw, err := a.loadOptions(flags)
	if err != nil {
		return err
	}

	module, err := a.module(flags, args)
	if err != nil {
		return err
	}

	logger, logErr := a.newLogger("lightkeeper")
	if logErr != nil {
		fmt.Fprintf(a.stderr, "Warning: file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	if traceOn, _ := flags.GetBool("trace"); traceOn {
		tp, err := tracing.NewTracerProvider(a.stderr, version)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	timeout, _ := flags.GetDuration("timeout")
	verbosity, _ := flags.GetCount("verbose")

	driverOutput := io.Discard
	if verbosity > 1 {
		driverOutput = a.stderr
	}

	opts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithStderr(a.stderr),
		executor.WithTimeout(timeout),
		executor.WithLauncher(browser.NewPlaywrightLauncher(logger, driverOutput)),
		executor.WithAuditor(audit.NewBatchRunner(
			audit.WithLogger(logger),
			audit.WithOutput(a.stdout),
		)),
	}
	opts = append(opts, a.executorOptions...)

	summary, runErr := executor.NewExecutor(opts...).Run(cmd.Context(), module, raw)
	if summary != nil {
		printSummary(a.stdout, summary)
	}
	if runErr != nil {
		return runErr
	}
	if path := logger.LogPath(); path != "" {
		fmt.Fprintf(a.stderr, "Log written to %s\n", path)
	}
	return nil
}

// loadOptions layers the config file, then the flags the user set, then
// the passthrough tokens.
func (a *app) loadOptions(flags *pflag.FlagSet) (config.RawOptions, error) {
	var raw config.RawOptions

	if path, _ := flags.GetString("config"); path != "" {
		fileOpts, err := config.LoadFile(path)
		if err != nil {
			return raw, err
		}
		raw = fileOpts
	}

	raw = raw.Apply(config.RawOptions{
		Main: config.MainOptions{
			Port:           getNullInt64(flags, "port"),
			Verbose:        getNullCount(flags, "verbose"),
			ChromiumParams: getNullString(flags, "chromium-params"),
		},
		Lighthouse: config.LighthouseOptions{
			OutputDirectory: getNullString(flags, "output-directory"),
			HTML:            getNullBool(flags, "html"),
			Params:          getNullString(flags, "lighthouse-params"),
		},
		Unknown: a.passthrough,
	})

	if err := raw.Validate(); err != nil {
		return raw, err
	}
	return raw, nil
}

// module returns the module identifier argument, or a static module for
// the --url flags.
func (a *app) module(flags *pflag.FlagSet, args []string) (any, error) {
	urls, _ := flags.GetStringArray("url")
	switch {
	case len(args) == 1 && len(urls) > 0:
		return nil, fmt.Errorf("--url cannot be combined with a module")
	case len(args) == 1:
		return args[0], nil
	case len(urls) > 0:
		return testcase.Static(urls...), nil
	default:
		return nil, fmt.Errorf("a module or at least one --url is required")
	}
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	v, err := flags.GetBool(key)
	if err != nil {
		panic(err)
	}
	return null.NewBool(v, flags.Changed(key))
}

func getNullInt64(flags *pflag.FlagSet, key string) null.Int {
	v, err := flags.GetInt64(key)
	if err != nil {
		panic(err)
	}
	return null.NewInt(v, flags.Changed(key))
}

func getNullCount(flags *pflag.FlagSet, key string) null.Int {
	v, err := flags.GetCount(key)
	if err != nil {
		panic(err)
	}
	return null.NewInt(int64(v), flags.Changed(key))
}

func getNullString(flags *pflag.FlagSet, key string) null.String {
	v, err := flags.GetString(key)
	if err != nil {
		panic(err)
	}
	return null.NewString(v, flags.Changed(key))
}
