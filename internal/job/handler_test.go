package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rfworker/internal/archive"
	"github.com/ekisa-team/rfworker/internal/modelstore"
	"github.com/ekisa-team/rfworker/internal/process"
)

const minimalPDB = "ATOM      1  N   ALA A   1      11.104   6.134  -6.504  1.00  0.00           N\nEND\n"

// stubInference writes one design next to the output prefix, echoing the
// arguments it received.
const stubInference = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    inference.input_pdb=*) input="${arg#inference.input_pdb=}" ;;
    inference.output_prefix=*) prefix="${arg#inference.output_prefix=}" ;;
  esac
done
echo "args: $*"
cp "$input" "${prefix}_0.pdb"
`

const stubFailure = `#!/bin/sh
echo "loading"
echo "boom" >&2
exit 1
`

// --- Mock types ---

type MockPreparer struct {
	mock.Mock
}

func (m *MockPreparer) Prepare(ctx context.Context, requested string) (string, error) {
	args := m.Called(ctx, requested)
	return args.String(0), args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, args []string, dir string) (*process.Result, error) {
	ret := m.Called(ctx, args, dir)
	res, _ := ret.Get(0).(*process.Result)
	return res, ret.Error(1)
}

// --- Helpers ---

type fixture struct {
	tempDir  string
	modelDir string
	script   string
}

func newFixture(t *testing.T, script string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		tempDir:  filepath.Join(root, "tmp"),
		modelDir: filepath.Join(root, "models"),
		script:   filepath.Join(root, "run_inference.sh"),
	}
	require.NoError(t, os.MkdirAll(f.tempDir, 0o755))
	require.NoError(t, os.MkdirAll(f.modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.modelDir, "Base_ckpt.pt"), []byte("w"), 0o644))
	require.NoError(t, os.WriteFile(f.script, []byte(script), 0o755))
	return f
}

func (f *fixture) handler() *Handler {
	store := modelstore.New(modelstore.Options{Subdir: "models", MountCandidates: []string{filepath.Dir(f.modelDir)}})
	return NewHandler(store, process.NewRunner("sh", 0), archive.NewOSBuilder(), Options{
		Script:  f.script,
		WorkDir: filepath.Dir(f.script),
		TempDir: f.tempDir,
	})
}

func (f *fixture) assertNoWorkspace(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace left behind")
}

func jobWith(input map[string]any) *Job {
	return &Job{ID: "test-job", Input: input}
}

func zipEntries(t *testing.T, b64 string) map[string]string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(body)
	}
	return out
}

// --- Tests ---

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, stubInference)

	out, err := f.handler().Run(context.Background(), jobWith(map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
		"commands": []any{"inference.num_designs=1"},
	}))
	require.NoError(t, err)

	assert.Empty(t, out.Error)
	require.NotEmpty(t, out.ResultZipB64)
	assert.Equal(t, map[string]string{"design_0.pdb": minimalPDB}, zipEntries(t, out.ResultZipB64))
	require.NotNil(t, out.Stdout)
	assert.Contains(t, *out.Stdout, "inference.model_directory_path="+f.modelDir)
	assert.Contains(t, *out.Stdout, "inference.num_designs=1")
	require.NotNil(t, out.Stderr)
	f.assertNoWorkspace(t)
}

func TestRun_ExecutionFailure(t *testing.T) {
	f := newFixture(t, stubFailure)

	out, err := f.handler().Run(context.Background(), jobWith(map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
	}))

	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, StageExecution, jobErr.Stage)
	var execErr *process.ExecutionError
	assert.ErrorAs(t, err, &execErr)

	assert.NotEmpty(t, out.Error)
	require.NotNil(t, out.Stderr)
	assert.Contains(t, *out.Stderr, "boom")
	require.NotNil(t, out.Stdout)
	assert.Contains(t, *out.Stdout, "loading")
	assert.Empty(t, out.ResultZipB64)
	f.assertNoWorkspace(t)
}

func TestRun_ModelPreparationFailureSkipsWorkspace(t *testing.T) {
	tempDir := t.TempDir()
	preparer := new(MockPreparer)
	preparer.On("Prepare", mock.Anything, "/requested").
		Return("", &modelstore.ProvisionError{Path: "/requested", Err: modelstore.ErrNoProvisioningMethod}).Once()
	executor := new(MockExecutor)

	h := NewHandler(preparer, executor, archive.NewOSBuilder(), Options{TempDir: tempDir})
	out, err := h.Run(context.Background(), jobWith(map[string]any{
		"pdb_file":             base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
		"model_directory_path": "/requested",
	}))

	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, StageModelPreparation, jobErr.Stage)
	assert.ErrorIs(t, err, modelstore.ErrNoProvisioningMethod)
	assert.Equal(t, "Failed to prepare model directory: no provisioning method available", out.Error)
	assert.Nil(t, out.Stdout)
	assert.Nil(t, out.Stderr)

	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	preparer.AssertExpectations(t)
}

func TestRun_MissingPDBFileFailsBeforeAnyActivity(t *testing.T) {
	preparer := new(MockPreparer)
	executor := new(MockExecutor)
	fs := afero.NewMemMapFs()

	h := NewHandler(preparer, executor, archive.NewBuilder(fs), Options{Fs: fs, TempDir: "/tmp"})
	out, err := h.Run(context.Background(), jobWith(map[string]any{"commands": []any{"a=b"}}))

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, FieldPDBFile, decodeErr.Field)
	assert.ErrorIs(t, err, ErrMissingField)
	assert.True(t, strings.HasPrefix(out.Error, "invalid job input: "), out.Error)
	assert.Contains(t, out.Error, "pdb_file")

	preparer.AssertNotCalled(t, "Prepare", mock.Anything, mock.Anything)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	exists, _ := afero.DirExists(fs, "/tmp")
	assert.False(t, exists)
}

func TestRun_StagingFailure(t *testing.T) {
	preparer := new(MockPreparer)
	preparer.On("Prepare", mock.Anything, "").Return("/models", nil).Once()
	executor := new(MockExecutor)

	h := NewHandler(preparer, executor, archive.NewOSBuilder(), Options{
		Fs:      afero.NewReadOnlyFs(afero.NewMemMapFs()),
		TempDir: "/tmp",
	})
	out, err := h.Run(context.Background(), jobWith(map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
	}))

	var stagingErr *StagingError
	require.ErrorAs(t, err, &stagingErr)
	assert.Contains(t, out.Error, "Failed to stage workspace")
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PassesArgumentsInOrder(t *testing.T) {
	tempDir := t.TempDir()
	preparer := new(MockPreparer)
	preparer.On("Prepare", mock.Anything, "").Return("/models", nil).Once()

	executor := new(MockExecutor)
	executor.On("Execute", mock.Anything, mock.MatchedBy(func(args []string) bool {
		if len(args) != 6 || args[0] != "/app/scripts/run_inference.py" {
			return false
		}
		ws := filepath.Dir(args[1][len(process.KeyInputPDB)+1:])
		return args[1] == process.KeyInputPDB+"="+filepath.Join(ws, "input.pdb") &&
			args[2] == process.KeyOutputPrefix+"="+filepath.Join(ws, "output", "design") &&
			args[3] == process.KeyModelDirectoryPath+"=/models" &&
			args[4] == "inference.num_designs=2" &&
			args[5] == "contigmap.contigs=[10-40/A163-181/10-40]"
	}), "/app").Return(&process.Result{Stdout: "ok"}, nil).Once()

	h := NewHandler(preparer, executor, archive.NewOSBuilder(), Options{
		Script:  "/app/scripts/run_inference.py",
		WorkDir: "/app",
		TempDir: tempDir,
	})
	out, err := h.Run(context.Background(), jobWith(map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
		"commands": []any{"inference.num_designs=2", "contigmap.contigs=[10-40/A163-181/10-40]"},
	}))

	require.NoError(t, err)
	assert.Empty(t, zipEntries(t, out.ResultZipB64))
	executor.AssertExpectations(t)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_NonExecutionErrorFromExecutor(t *testing.T) {
	preparer := new(MockPreparer)
	preparer.On("Prepare", mock.Anything, "").Return("/models", nil)
	executor := new(MockExecutor)
	executor.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("exec: not found"))

	h := NewHandler(preparer, executor, archive.NewOSBuilder(), Options{TempDir: t.TempDir()})
	out, err := h.Run(context.Background(), jobWith(map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
	}))

	assert.Error(t, err)
	assert.Equal(t, "exec: not found", out.Error)
	require.NotNil(t, out.Stderr)
	assert.Empty(t, *out.Stderr)
}

func TestHandle_AssignsIDAndStatus(t *testing.T) {
	f := newFixture(t, stubInference)
	h := f.handler()

	resp := h.Handle(context.Background(), &Job{Input: map[string]any{
		"pdb_file": base64.StdEncoding.EncodeToString([]byte(minimalPDB)),
	}})
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.Output.ResultZipB64)

	resp = h.Handle(context.Background(), &Job{ID: "given", Input: map[string]any{}})
	assert.Equal(t, "given", resp.ID)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.NotEmpty(t, resp.Output.Error)
}
