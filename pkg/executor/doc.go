// Package executor runs one audit: it turns layered options into an
// effective configuration, launches a browser, hands it to a test module
// and audits the URLs the module lists.
//
// The pipeline is strictly sequential:
//
//  1. Resolve options
//  2. Load the test module (a value, or an identifier passed to a Loader)
//  3. Check the module provides Connect and URLs
//  4. Launch the browser
//  5. Connect: the module may return a wrapped handle, which replaces the
//     launched one
//  6. List URLs
//  7. Run the audit with the debug port and extra lighthouse parameters
//  8. Close the browser
//
// A module missing a method yields a *ContractViolationError and no browser
// is launched. Once launched, the browser is closed on every exit path and
// the original error is returned untouched.
//
// Example usage:
//
//	exec := executor.NewExecutor(executor.WithLogger(logger))
//	summary, err := exec.Run(ctx, "checkout.yaml", raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
package executor
