// Package audit runs Lighthouse against a list of sites through an already
// running Chromium and collects the reports.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/afero"

	"github.com/entrhq/lightkeeper/pkg/logging"
)

// SummaryFile is the name of the batch summary written to the output directory.
const SummaryFile = "summary.json"

// Options is a single batch invocation.
type Options struct {
	Verbose bool
	Sites   []string
	HTML    bool
	Out     string

	// UseGlobal runs the lighthouse binary from PATH instead of npx
	UseGlobal bool

	// Params is appended to every lighthouse command line
	Params string
}

// Runner audits a batch of sites.
type Runner interface {
	Run(ctx context.Context, opts Options) (*Summary, error)
}

// CommandFunc executes a command and returns its combined output.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// BatchRunner audits sites one after another with the lighthouse CLI.
type BatchRunner struct {
	fs      afero.Fs
	command CommandFunc
	stdout  io.Writer
	logger  *logging.Logger
	now     func() time.Time
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithFs sets the filesystem reports are read from and the summary is
// written to. It must be the filesystem lighthouse writes to.
func WithFs(fs afero.Fs) BatchOption {
	return func(r *BatchRunner) {
		r.fs = fs
	}
}

// WithCommand replaces command execution.
func WithCommand(fn CommandFunc) BatchOption {
	return func(r *BatchRunner) {
		r.command = fn
	}
}

// WithOutput sets where lighthouse output is echoed in verbose mode.
func WithOutput(w io.Writer) BatchOption {
	return func(r *BatchRunner) {
		r.stdout = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) BatchOption {
	return func(r *BatchRunner) {
		r.logger = l
	}
}

// NewBatchRunner creates a runner using the OS filesystem and os/exec.
func NewBatchRunner(opts ...BatchOption) *BatchRunner {
	r := &BatchRunner{
		fs:      afero.NewOsFs(),
		command: execCommand,
		stdout:  io.Discard,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Run audits every site, writes summary.json and returns the summary.
// A failing site does not stop the batch; all site failures are returned
// joined once the summary is written. Cancellation stops the batch.
func (r *BatchRunner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Out == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	// Params are split the way a shell would, so quoted values such as
	// --chrome-flags="--headless --no-sandbox" stay one argument.
	params, err := shlex.Split(opts.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid lighthouse params %q: %w", opts.Params, err)
	}
	if err := r.fs.MkdirAll(opts.Out, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	bin, prefix := "npx", []string{"--yes", "lighthouse"}
	if opts.UseGlobal {
		bin, prefix = "lighthouse", nil
	}

	summary := &Summary{StartTime: r.now()}
	names := make(map[string]bool, len(opts.Sites))
	var errs []error

	for _, site := range opts.Sites {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		name := uniqueName(SiteName(site), names)
		result, err := r.auditSite(ctx, bin, prefix, params, site, name, opts)
		summary.Sites = append(summary.Sites, result)
		if err != nil {
			r.logger.Errorf("Audit of %s failed: %v", site, err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			errs = append(errs, err)
			continue
		}
		r.logger.Infof("Audited %s: score %.2f", site, result.Score)
	}

	summary.EndTime = r.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime).String()

	if err := r.writeSummary(opts.Out, summary); err != nil {
		errs = append(errs, err)
	}

	return summary, errors.Join(errs...)
}

// uniqueName returns name, or name with the first free numeric suffix when
// an earlier site of the batch already uses it.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[candidate] = true
	return candidate
}

func (r *BatchRunner) auditSite(ctx context.Context, bin string, prefix, params []string, site, name string, opts Options) (SiteResult, error) {
	base := filepath.Join(opts.Out, name)
	jsonPath := base + ".report.json"

	result := SiteResult{URL: site, Name: name, File: filepath.Base(jsonPath)}

	args := append([]string(nil), prefix...)
	args = append(args, site, "--output=json")
	outputPath := jsonPath
	if opts.HTML {
		// With several outputs lighthouse derives <base>.report.<ext> itself
		args = append(args, "--output=html")
		outputPath = base
		result.HTML = filepath.Base(base + ".report.html")
	}
	args = append(args, "--output-path="+outputPath)
	args = append(args, params...)

	r.logger.Debugf("Running %s %s", bin, strings.Join(args, " "))
	output, err := r.command(ctx, bin, args...)
	if opts.Verbose && len(output) > 0 {
		_, _ = r.stdout.Write(output)
	}
	if err != nil {
		siteErr := &SiteError{URL: site, Output: string(output), Err: err}
		result.Error = siteErr.Error()
		return result, siteErr
	}

	data, err := afero.ReadFile(r.fs, jsonPath)
	if err != nil {
		siteErr := &SiteError{URL: site, Err: fmt.Errorf("failed to read report: %w", err)}
		result.Error = siteErr.Error()
		return result, siteErr
	}

	score, detail, err := ScoreReport(data)
	if err != nil {
		siteErr := &SiteError{URL: site, Err: err}
		result.Error = siteErr.Error()
		return result, siteErr
	}
	result.Score = score
	result.Detail = detail
	return result, nil
}

func (r *BatchRunner) writeSummary(out string, summary *Summary) error {
	data, err := json.MarshalIndent(summary.Sites, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := afero.WriteFile(r.fs, filepath.Join(out, SummaryFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// SiteError is a failed audit of one site.
type SiteError struct {
	URL    string
	Output string
	Err    error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("audit of %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *SiteError) Unwrap() error {
	return e.Err
}
