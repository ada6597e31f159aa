package process

import "fmt"

// ExecutionError reports a run that did not exit zero.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command '%s' failed with exit status %d: %v", e.Command, e.ExitCode, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
