// Package browser launches the Chromium instance a run audits through.
//
// A run owns exactly one Handle. The playwright implementation, Instance,
// starts its own driver and launches Chromium with a persistent context in
// a throwaway profile directory. Pages opened through it live in Chromium's
// default context, the one Lighthouse opens its tabs in, so a login done by
// a test module is visible to the audit. Closing the handle tears down the
// browser, the driver and the profile directory.
//
// Test modules may wrap the handle with Pin to keep a prepared page open
// while the audit runs; closing a pinned handle closes the page first.
//
// # Launch flags
//
// Passthrough keys given on the command line as --puppeteer-<key> [value]
// are mapped onto playwright launch options by ApplyFlags:
//
//   - headless, chromiumSandbox, ignoreDefaultArgs: booleans
//   - devtools: boolean, adds --auto-open-devtools-for-tabs to the args
//   - slowMo, timeout: milliseconds
//   - channel, downloadsPath, tracesDir: strings
//
// args and executablePath are carried by LaunchOptions directly. Any other
// key is reported back to the caller and ignored.
//
// # Example Usage
//
//	launcher := browser.NewPlaywrightLauncher(logger, nil)
//	handle, err := launcher.Launch(ctx, browser.LaunchOptions{
//	    Args: []string{"--remote-debugging-port=9222"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer handle.Close()
package browser
