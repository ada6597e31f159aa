package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/ekisa-team/rfworker/internal/archive"
	"github.com/ekisa-team/rfworker/internal/config"
	"github.com/ekisa-team/rfworker/internal/logger"
	"github.com/ekisa-team/rfworker/internal/modelstore"
	"github.com/ekisa-team/rfworker/internal/process"
)

// ModelPreparer returns a model directory that is ready to use.
type ModelPreparer interface {
	Prepare(ctx context.Context, requested string) (string, error)
}

// Executor runs the inference program.
type Executor interface {
	Execute(ctx context.Context, args []string, dir string) (*process.Result, error)
}

// Packager turns a directory into archive bytes.
type Packager interface {
	Build(root string) ([]byte, error)
}

// Options configures a Handler.
type Options struct {
	// Script is the inference script passed as the first argument.
	Script string
	// WorkDir is the working directory of the inference process.
	WorkDir string
	// TempDir is where workspaces are created; empty means the system default.
	TempDir string
	// Fs backs the workspace; it must be the host filesystem in production.
	Fs afero.Fs
}

// Handler runs jobs. It holds no per-job state and is safe for concurrent use.
type Handler struct {
	models   ModelPreparer
	executor Executor
	packager Packager
	opts     Options
}

// NewHandler creates a Handler.
func NewHandler(models ModelPreparer, executor Executor, packager Packager, opts Options) *Handler {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	return &Handler{
		models:   models,
		executor: executor,
		packager: packager,
		opts:     opts,
	}
}

// NewHandlerFromConfig wires the host implementations from cfg.
func NewHandlerFromConfig(cfg *config.Config) *Handler {
	return NewHandler(
		modelstore.NewFromConfig(cfg),
		process.NewRunner(cfg.Inference.PythonBin, cfg.Inference.Timeout),
		archive.NewOSBuilder(),
		Options{
			Script:  cfg.Inference.ScriptPath(),
			WorkDir: cfg.Inference.RepoDir,
		},
	)
}

// Handle runs j and wraps the outcome in a Response. A missing job id is
// replaced by a fresh UUID.
func (h *Handler) Handle(ctx context.Context, j *Job) *Response {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	ctx = logger.WithJobID(ctx, j.ID)
	log := logger.FromContext(ctx)

	start := time.Now()
	out, err := h.Run(ctx, j)
	elapsed := time.Since(start)

	resp := &Response{
		ID:            j.ID,
		Status:        StatusCompleted,
		Output:        out,
		ExecutionTime: elapsed.Milliseconds(),
	}
	if err != nil {
		resp.Status = StatusFailed
		var jobErr *Error
		stage := Stage("unknown")
		if errors.As(err, &jobErr) {
			stage = jobErr.Stage
		}
		log.Error("Job failed", "stage", stage, "elapsed", elapsed, "error", err)
		return resp
	}

	log.Info("Job completed", "elapsed", elapsed)
	return resp
}

// Run executes one job. The returned Output is never nil and is what the
// caller should hand back; the error, if any, is a *Error naming the stage.
func (h *Handler) Run(ctx context.Context, j *Job) (*Output, error) {
	log := logger.FromContext(ctx)

	input, err := DecodeInput(j.Input)
	if err != nil {
		return &Output{Error: fmt.Sprintf("invalid job input: %v", err)}, &Error{Stage: StageDecode, Err: err}
	}

	log.Info("Preparing model directory", "requested", input.ModelDirectoryPath)
	modelDir, err := h.models.Prepare(ctx, input.ModelDirectoryPath)
	if err != nil {
		return &Output{Error: fmt.Sprintf("Failed to prepare model directory: %v", err)}, &Error{Stage: StageModelPreparation, Err: err}
	}
	log.Info("Model directory ready", "path", modelDir)

	ws, err := acquireWorkspace(h.opts.Fs, h.opts.TempDir, input.PDB)
	if err != nil {
		stagingErr := &StagingError{Err: err}
		return &Output{Error: fmt.Sprintf("Failed to stage workspace: %v", err)}, &Error{Stage: StageStaging, Err: stagingErr}
	}
	defer ws.Release()
	log.Debug("Workspace staged", "path", ws.Root())

	args := process.BuildArgs(h.opts.Script, ws.InputPath(), ws.OutputPrefix(), modelDir, input.Commands)

	// The run cannot be aborted once started.
	result, err := h.executor.Execute(context.WithoutCancel(ctx), args, h.opts.WorkDir)
	if err != nil {
		out := &Output{Error: err.Error()}
		var execErr *process.ExecutionError
		if errors.As(err, &execErr) {
			out.Stdout = stringPtr(execErr.Stdout)
			out.Stderr = stringPtr(execErr.Stderr)
		} else {
			out.Stdout = stringPtr("")
			out.Stderr = stringPtr("")
		}
		return out, &Error{Stage: StageExecution, Err: err}
	}

	data, err := h.packager.Build(ws.OutputDir())
	if err != nil {
		packErr := &PackagingError{Err: err}
		return &Output{Error: fmt.Sprintf("Failed to package results: %v", err)}, &Error{Stage: StagePackaging, Err: packErr}
	}
	log.Info("Packaged results", "bytes", len(data))

	return &Output{
		ResultZipB64: archive.Encode(data),
		Stdout:       stringPtr(result.Stdout),
		Stderr:       stringPtr(result.Stderr),
	}, nil
}
