package browser

import (
	"context"

	"github.com/playwright-community/playwright-go"
)

// Handle is a live browser owned by a single run.
type Handle interface {
	// Close releases the browser. Implementations must tolerate being
	// closed more than once.
	Close() error
}

// PageOpener is implemented by handles able to open new pages.
type PageOpener interface {
	NewPage() (playwright.Page, error)
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Handle, error)
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	// Args are passed to Chromium verbatim
	Args []string

	// ExecutablePath replaces the bundled Chromium when set
	ExecutablePath string

	// Flags are passthrough launch keys, see ApplyFlags
	Flags map[string]string
}

// Default values for launches
const (
	DefaultHeadless = true
	DefaultTimeout  = 30000.0 // 30 seconds in milliseconds
)
