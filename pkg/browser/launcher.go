package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/lightkeeper/pkg/logging"
)

// PlaywrightLauncher launches Chromium through a playwright driver started
// for each launch. The driver is stopped when the returned handle closes.
type PlaywrightLauncher struct {
	logger *logging.Logger
	output io.Writer
}

// NewPlaywrightLauncher creates a launcher. Driver output goes to output,
// io.Discard when nil.
func NewPlaywrightLauncher(logger *logging.Logger, output io.Writer) *PlaywrightLauncher {
	if logger == nil {
		logger = logging.Discard()
	}
	if output == nil {
		output = io.Discard
	}
	return &PlaywrightLauncher{logger: logger, output: output}
}

// Launch installs the driver if needed, starts it and launches Chromium with
// a persistent context in a temporary profile directory. That context is
// Chromium's default one, so pages opened through the handle share cookies
// and storage with the tabs Lighthouse opens over the debugging port.
// Chromium itself is only installed when no executable is configured.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(DefaultHeadless),
		Args:     append([]string(nil), opts.Args...),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	ignored, err := ApplyFlags(&launchOpts, opts.Flags)
	if err != nil {
		return nil, err
	}
	for _, key := range ignored {
		l.logger.Warnf("Ignoring unsupported launch flag %q", key)
	}

	runOpts := &playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: opts.ExecutablePath != "",
		Verbose:             false,
		Stdout:              l.output,
		Stderr:              l.output,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	profileDir, err := os.MkdirTemp("", "lightkeeper-profile-")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	l.logger.Debugf("Launching chromium with args %v, profile %s", opts.Args, profileDir)
	bctx, err := pw.Chromium.LaunchPersistentContext(profileDir, launchOpts)
	if err != nil {
		_ = pw.Stop()
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return newInstance(bctx, pw.Stop, profileDir), nil
}

// pageContext is the part of playwright.BrowserContext an Instance uses.
type pageContext interface {
	NewPage() (playwright.Page, error)
	Close(options ...playwright.BrowserContextCloseOptions) error
}

// Instance is a Chromium browser launched by PlaywrightLauncher.
type Instance struct {
	context    pageContext
	stop       func() error
	profileDir string

	closeOnce sync.Once
	closeErr  error
}

func newInstance(bctx pageContext, stop func() error, profileDir string) *Instance {
	return &Instance{context: bctx, stop: stop, profileDir: profileDir}
}

// NewPage opens a page in the launch context.
func (i *Instance) NewPage() (playwright.Page, error) {
	page, err := i.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// Close closes the browser, stops the driver and removes the profile
// directory.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		var errs []error
		if err := i.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		if err := i.stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		if i.profileDir != "" {
			if err := os.RemoveAll(i.profileDir); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove profile directory: %w", err))
			}
		}
		i.closeErr = errors.Join(errs...)
	})
	return i.closeErr
}

// PinnedHandle is a handle bound to the page a test module prepared.
type PinnedHandle struct {
	Handle
	Page playwright.Page

	closeOnce sync.Once
	closeErr  error
}

// Pin binds page to h. Closing the result closes the page, then h.
func Pin(h Handle, page playwright.Page) *PinnedHandle {
	return &PinnedHandle{Handle: h, Page: page}
}

// NewPage opens another page when the pinned handle supports it.
func (p *PinnedHandle) NewPage() (playwright.Page, error) {
	opener, ok := p.Handle.(PageOpener)
	if !ok {
		return nil, fmt.Errorf("browser handle cannot open pages")
	}
	return opener.NewPage()
}

// Close closes the pinned page (ignoring errors, the browser goes next) and
// the underlying handle.
func (p *PinnedHandle) Close() error {
	p.closeOnce.Do(func() {
		if p.Page != nil {
			_ = p.Page.Close()
		}
		p.closeErr = p.Handle.Close()
	})
	return p.closeErr
}
