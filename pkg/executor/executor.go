package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/lightkeeper/pkg/audit"
	"github.com/entrhq/lightkeeper/pkg/browser"
	"github.com/entrhq/lightkeeper/pkg/config"
	"github.com/entrhq/lightkeeper/pkg/logging"
	"github.com/entrhq/lightkeeper/pkg/testcase"
	"github.com/entrhq/lightkeeper/pkg/tracing"
)

// Executor runs the audit pipeline. An Executor holds no per-run state and
// may be reused, but two concurrent runs resolving to the same debug port
// will collide.
type Executor struct {
	resolver *config.Resolver
	loader   testcase.Loader
	launcher browser.Launcher
	auditor  audit.Runner
	logger   *logging.Logger
	tracer   trace.Tracer
	stderr   io.Writer
	timeout  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithResolver sets the option resolver.
func WithResolver(r *config.Resolver) Option {
	return func(e *Executor) {
		e.resolver = r
	}
}

// WithLoader sets how module identifiers are resolved.
func WithLoader(l testcase.Loader) Option {
	return func(e *Executor) {
		e.loader = l
	}
}

// WithLauncher sets the browser launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(e *Executor) {
		e.launcher = l
	}
}

// WithAuditor sets the audit runner.
func WithAuditor(a audit.Runner) Option {
	return func(e *Executor) {
		e.auditor = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithTracer sets the tracer, the global lightkeeper tracer by default.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = t
	}
}

// WithStderr sets where module diagnostics are written.
func WithStderr(w io.Writer) Option {
	return func(e *Executor) {
		e.stderr = w
	}
}

// WithTimeout bounds a whole run. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an executor. Without options it launches Chromium
// through playwright and audits with the lighthouse CLI.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		loader: testcase.DefaultLoader,
		logger: logging.Discard(),
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.resolver == nil {
		e.resolver = config.NewResolver(config.WithDiagnostics(e.stderr))
	}
	if e.launcher == nil {
		e.launcher = browser.NewPlaywrightLauncher(e.logger, nil)
	}
	if e.auditor == nil {
		e.auditor = audit.NewBatchRunner(audit.WithLogger(e.logger))
	}
	if e.tracer == nil {
		e.tracer = tracing.Tracer()
	}
	return e
}

// Run resolves raw, loads module, launches the browser, lets the module
// connect and list its URLs, audits them and closes the browser.
//
// module is either a value implementing testcase.Connector and
// testcase.URLSource or a string handed to the loader. Errors from the
// loader, launcher, module and auditor are returned unmodified; the browser
// is closed before returning whenever it was launched.
func (e *Executor) Run(ctx context.Context, module any, raw config.RawOptions) (summary *audit.Summary, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "lightkeeper.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cfg := e.resolver.Resolve(raw)
	span.SetAttributes(
		attribute.String("lightkeeper.run_id", e.logger.RunID()),
		attribute.Int("lightkeeper.debug_port", cfg.DebugPort),
		attribute.String("lightkeeper.output_dir", cfg.OutputDir),
	)

	connector, source, id, err := e.loadModule(ctx, module)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("lightkeeper.module", id))
	log := e.logger.WithField("module", id)

	log.Infof("Launching browser on debug port %d", cfg.DebugPort)
	handle, err := e.launch(ctx, cfg)
	if err != nil {
		log.Errorf("Browser launch failed: %v", err)
		return nil, err
	}

	// From here on the tracked handle is released on every path.
	tracked := handle
	defer func() {
		closeErr := e.closeBrowser(ctx, tracked)
		if closeErr == nil {
			return
		}
		if err != nil {
			log.Warnf("Failed to close browser after error: %v", closeErr)
			return
		}
		err = closeErr
	}()

	connected, err := e.connect(ctx, connector, tracked)
	if err != nil {
		log.Errorf("Module connect failed: %v", err)
		return nil, err
	}
	if connected != nil {
		tracked = connected
	}

	urls, err := e.urls(ctx, source)
	if err != nil {
		log.Errorf("Module URL listing failed: %v", err)
		return nil, err
	}
	log.Infof("Auditing %d urls", len(urls))

	summary, err = e.audit(ctx, cfg, urls)
	if err != nil {
		log.Errorf("Audit failed: %v", err)
		return summary, err
	}

	log.Infof("Audit finished, reports in %s", cfg.OutputDir)
	return summary, nil
}

// loadModule resolves module and checks both halves of the contract.
func (e *Executor) loadModule(ctx context.Context, module any) (testcase.Connector, testcase.URLSource, string, error) {
	value := module
	id := moduleID(module)

	if path, ok := module.(string); ok {
		_, span := e.tracer.Start(ctx, "lightkeeper.load")
		loaded, err := e.loader(ctx, path)
		span.End()
		if err != nil {
			return nil, nil, id, err
		}
		value = loaded
	}

	connector, ok := value.(testcase.Connector)
	if !ok {
		return nil, nil, id, e.contractViolation(id, MethodConnect)
	}
	source, ok := value.(testcase.URLSource)
	if !ok {
		return nil, nil, id, e.contractViolation(id, MethodURLs)
	}
	return connector, source, id, nil
}

func (e *Executor) contractViolation(id, method string) error {
	err := &ContractViolationError{Module: id, Method: method}
	fmt.Fprintln(e.stderr, err.Error())
	e.logger.Errorf("%v", err)
	return err
}

func (e *Executor) launch(ctx context.Context, cfg config.EffectiveConfig) (browser.Handle, error) {
	ctx, span := e.tracer.Start(ctx, "lightkeeper.launch")
	defer span.End()

	return e.launcher.Launch(ctx, browser.LaunchOptions{
		Args:           cfg.LaunchArgs,
		ExecutablePath: cfg.ExecutablePath,
		Flags:          cfg.LaunchFlags,
	})
}

func (e *Executor) connect(ctx context.Context, c testcase.Connector, h browser.Handle) (browser.Handle, error) {
	ctx, span := e.tracer.Start(ctx, "lightkeeper.connect")
	defer span.End()

	return c.Connect(ctx, h)
}

func (e *Executor) urls(ctx context.Context, s testcase.URLSource) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "lightkeeper.urls")
	defer span.End()

	return s.URLs(ctx)
}

func (e *Executor) audit(ctx context.Context, cfg config.EffectiveConfig, urls []string) (*audit.Summary, error) {
	ctx, span := e.tracer.Start(ctx, "lightkeeper.audit")
	defer span.End()
	span.SetAttributes(attribute.Int("lightkeeper.sites", len(urls)))

	return e.auditor.Run(ctx, audit.Options{
		Verbose:   cfg.Verbose,
		Sites:     urls,
		HTML:      cfg.HTML,
		Out:       cfg.OutputDir,
		UseGlobal: true,
		Params:    auditParams(cfg),
	})
}

func (e *Executor) closeBrowser(ctx context.Context, h browser.Handle) error {
	_, span := e.tracer.Start(ctx, "lightkeeper.close")
	defer span.End()

	return h.Close()
}

// auditParams builds the lighthouse parameter string: the debug port first,
// then the configured extra parameters.
func auditParams(cfg config.EffectiveConfig) string {
	params := fmt.Sprintf("--port %d", cfg.DebugPort)
	if cfg.AuditParams != "" {
		params += " " + cfg.AuditParams
	}
	return params
}

func moduleID(module any) string {
	switch m := module.(type) {
	case string:
		return m
	case fmt.Stringer:
		return m.String()
	default:
		return fmt.Sprintf("%T", module)
	}
}
