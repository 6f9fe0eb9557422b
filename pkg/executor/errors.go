package executor

import "fmt"

// Methods a test module must provide.
const (
	MethodConnect = "Connect"
	MethodURLs    = "URLs"
)

// Process exit codes for contract violations, the unsigned forms of -1 and -2.
const (
	ExitMissingConnect = 255
	ExitMissingURLs    = 254
)

// ContractViolationError reports a test module missing a required method.
// It is returned before any browser is launched.
type ContractViolationError struct {
	Module string
	Method string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%s: module incorrectly formatted, module should have %q method", e.Module, e.Method)
}

// ExitCode returns the process exit code for the missing method.
func (e *ContractViolationError) ExitCode() int {
	if e.Method == MethodConnect {
		return ExitMissingConnect
	}
	return ExitMissingURLs
}
