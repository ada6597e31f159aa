// Package process runs the external inference program and maps its exit
// status onto a result or a structured error.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Argument keys understood by the inference script.
const (
	KeyInputPDB           = "inference.input_pdb"
	KeyOutputPrefix       = "inference.output_prefix"
	KeyModelDirectoryPath = "inference.model_directory_path"
)

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args []string) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command in dir and waits for it to finish.
func (ExecCommandRunner) Run(ctx context.Context, dir, name string, args []string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Result is the captured outcome of a successful run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner invokes the inference script through an interpreter.
type Runner struct {
	runner      CommandRunner
	interpreter string
	timeout     time.Duration
}

// NewRunner creates a runner. A zero timeout leaves the process unbounded.
func NewRunner(interpreter string, timeout time.Duration) *Runner {
	return NewRunnerWithCommandRunner(interpreter, timeout, ExecCommandRunner{})
}

// NewRunnerWithCommandRunner creates a runner with a custom command runner.
func NewRunnerWithCommandRunner(interpreter string, timeout time.Duration, runner CommandRunner) *Runner {
	return &Runner{
		runner:      runner,
		interpreter: interpreter,
		timeout:     timeout,
	}
}

// BuildArgs builds the argument vector passed after the interpreter. The
// required tokens always come first; extra tokens are appended verbatim even
// when they repeat a required key.
func BuildArgs(script, inputPath, outputPrefix, modelDir string, extra []string) []string {
	args := make([]string, 0, 4+len(extra))
	args = append(args,
		script,
		KeyInputPDB+"="+inputPath,
		KeyOutputPrefix+"="+outputPrefix,
		KeyModelDirectoryPath+"="+modelDir,
	)
	return append(args, extra...)
}

// Execute runs the interpreter with args in dir. It is attempted exactly once.
// A non-zero exit is returned as *ExecutionError carrying both streams.
func (r *Runner) Execute(ctx context.Context, args []string, dir string) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	commandLine := strings.Join(append([]string{r.interpreter}, args...), " ")
	slog.Info("Running command", "command", commandLine, "dir", dir)

	start := time.Now()
	stdout, stderr, err := r.runner.Run(ctx, dir, r.interpreter, args)
	elapsed := time.Since(start)

	if err != nil {
		execErr := &ExecutionError{
			Command:  commandLine,
			ExitCode: exitCode(err),
			Stdout:   string(stdout),
			Stderr:   string(stderr),
			Err:      err,
		}
		if ctx.Err() != nil {
			execErr.Err = fmt.Errorf("%w (%w)", err, ctx.Err())
		}
		slog.Error("Command failed",
			"command", commandLine,
			"exit_code", execErr.ExitCode,
			"elapsed", elapsed,
			"error", err,
			"stdout", execErr.Stdout,
			"stderr", execErr.Stderr)
		return nil, execErr
	}

	slog.Info("Command finished", "elapsed", elapsed, "stdout", string(stdout), "stderr", string(stderr))

	return &Result{
		ExitCode: 0,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
