package job

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	inputFilename = "input.pdb"
	outputDirname = "output"
	outputStem    = "design"
)

// workspace is a per-job temporary directory holding the staged input and
// the directory the inference program writes into.
type workspace struct {
	fs   afero.Fs
	root string
}

// acquireWorkspace creates a fresh workspace under base (the system temp dir
// when empty) and stages input into it. On error nothing is left behind.
func acquireWorkspace(fs afero.Fs, base string, input []byte) (*workspace, error) {
	root, err := afero.TempDir(fs, base, "rfworker-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	ws := &workspace{fs: fs, root: root}

	if err := fs.MkdirAll(ws.OutputDir(), 0o755); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := afero.WriteFile(fs, ws.InputPath(), input, 0o644); err != nil {
		ws.Release()
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	return ws, nil
}

func (w *workspace) Root() string {
	return w.root
}

func (w *workspace) InputPath() string {
	return filepath.Join(w.root, inputFilename)
}

func (w *workspace) OutputDir() string {
	return filepath.Join(w.root, outputDirname)
}

// OutputPrefix is the prefix the inference program names its designs with.
func (w *workspace) OutputPrefix() string {
	return filepath.Join(w.OutputDir(), outputStem)
}

// Release removes the workspace and everything in it.
func (w *workspace) Release() {
	if err := w.fs.RemoveAll(w.root); err != nil {
		slog.Error("Failed to remove workspace", "path", w.root, "error", err)
	}
}
