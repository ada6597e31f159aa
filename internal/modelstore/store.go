// Package modelstore resolves the model weights directory and provisions it
// on first use.
package modelstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/ekisa-team/rfworker/internal/config"
	"github.com/ekisa-team/rfworker/internal/process"
	"github.com/ekisa-team/rfworker/internal/xfs"
)

const (
	fallbackMountBase = "/workspace"
	defaultShell      = "bash"
	maxLinkHops       = 40
)

// hostGate collapses provisioning of one host path across every Store in the
// process, including Stores rebuilt after a config reload.
var hostGate singleflight.Group

// CopyFunc copies src (file or directory) to dst, merging into existing
// directories and overwriting existing files.
type CopyFunc func(src, dst string) error

// Options configures a Store.
type Options struct {
	Fs               afero.Fs
	Subdir           string
	ExplicitDir      string
	MountCandidates  []string
	WeightExtensions []string

	// RepoDir holds the bundled models/ directory and the download scripts.
	RepoDir   string
	PythonBin string
	Shell     string

	Runner process.CommandRunner
	Copy   CopyFunc
}

// Store locates model weights and provisions them when missing.
type Store struct {
	opts Options
	gate *singleflight.Group
}

// New creates a Store, filling unset options with host defaults.
func New(opts Options) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Shell == "" {
		opts.Shell = defaultShell
	}
	if opts.Runner == nil {
		opts.Runner = process.ExecCommandRunner{}
	}
	if opts.Copy == nil {
		opts.Copy = CopyTree
	}
	if len(opts.WeightExtensions) == 0 {
		opts.WeightExtensions = config.DefaultWeightExtensions
	}

	gate := new(singleflight.Group)
	if _, ok := opts.Fs.(*afero.OsFs); ok {
		gate = &hostGate
	}

	return &Store{opts: opts, gate: gate}
}

// NewFromConfig creates a host-filesystem Store from cfg.
func NewFromConfig(cfg *config.Config) *Store {
	return New(Options{
		Subdir:           cfg.Models.Subdir,
		ExplicitDir:      cfg.Models.Dir,
		MountCandidates:  cfg.Models.MountCandidates,
		WeightExtensions: cfg.Models.WeightExtensions,
		RepoDir:          cfg.Inference.RepoDir,
		PythonBin:        cfg.Inference.PythonBin,
	})
}

// Prepare resolves the model directory and makes sure it holds weights.
func (s *Store) Prepare(ctx context.Context, requested string) (string, error) {
	path := s.Resolve(requested)
	if err := s.Ensure(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// Resolve picks the model directory.
// Precedence:
// 1. The path supplied with the request, unchecked.
// 2. The configured override (RF_MODEL_DIR).
// 3. The first mount candidate whose subdir already holds weights.
// 4. The first mount candidate's subdir, to be provisioned.
func (s *Store) Resolve(requested string) string {
	if requested != "" {
		return xfs.ExpandTilde(requested)
	}
	if s.opts.ExplicitDir != "" {
		return xfs.ExpandTilde(s.opts.ExplicitDir)
	}

	for _, base := range s.opts.MountCandidates {
		candidate := filepath.Join(xfs.ExpandTilde(base), s.opts.Subdir)
		if s.Satisfied(candidate) {
			slog.Debug("Found existing model weights", "path", candidate)
			return candidate
		}
	}

	base := fallbackMountBase
	if len(s.opts.MountCandidates) > 0 {
		base = s.opts.MountCandidates[0]
	}
	return filepath.Join(xfs.ExpandTilde(base), s.opts.Subdir)
}

// Satisfied reports whether path is a directory containing at least one
// weight file at any depth. A symlinked path is followed. It always hits the
// filesystem.
func (s *Store) Satisfied(path string) bool {
	if ok, err := afero.DirExists(s.opts.Fs, path); err != nil || !ok {
		return false
	}

	found := false
	_ = afero.Walk(s.opts.Fs, s.followLinks(path), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			return nil
		}
		if found {
			return filepath.SkipDir
		}
		if info.IsDir() {
			return nil
		}
		if slices.Contains(s.opts.WeightExtensions, filepath.Ext(info.Name())) {
			found = true
			return filepath.SkipDir
		}
		return nil
	})

	return found
}

// Ensure provisions path when it has no weights. Already satisfied
// directories are left untouched. Concurrent calls for the same path share
// one provisioning run.
func (s *Store) Ensure(ctx context.Context, path string) error {
	if s.Satisfied(path) {
		return nil
	}

	_, err, shared := s.gate.Do(filepath.Clean(path), func() (any, error) {
		if s.Satisfied(path) {
			return nil, nil
		}
		return nil, s.provision(context.WithoutCancel(ctx), path)
	})
	if err != nil {
		return err
	}

	if shared && !s.Satisfied(path) {
		return &ProvisionError{Path: path, Err: ErrNoWeights}
	}
	return nil
}

func (s *Store) provision(ctx context.Context, target string) error {
	if err := s.opts.Fs.MkdirAll(target, 0o755); err != nil {
		return &ProvisionError{Path: target, Err: fmt.Errorf("failed to create %s: %w", target, err)}
	}

	slog.Info("Model files not found, provisioning", "target", target, "repo", s.opts.RepoDir)

	source := s.sourceDir()
	if !s.Satisfied(source) {
		if err := s.download(ctx); err != nil {
			return &ProvisionError{Path: target, Err: err}
		}
	}

	if ok, _ := afero.DirExists(s.opts.Fs, source); !ok {
		return &ProvisionError{Path: target, Err: fmt.Errorf("%w: %s", ErrSourceMissing, source)}
	}

	entries, err := afero.ReadDir(s.opts.Fs, source)
	if err != nil {
		return &ProvisionError{Path: target, Err: fmt.Errorf("failed to read %s: %w", source, err)}
	}
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if err := s.opts.Copy(src, dst); err != nil {
			return &ProvisionError{Path: target, Err: fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)}
		}
	}

	if !s.Satisfied(target) {
		return &ProvisionError{Path: target, Err: ErrNoWeights}
	}

	slog.Info("Model directory provisioned", "target", target, "entries", len(entries))
	return nil
}

// download runs the bundled download script, preferring the shell form.
func (s *Store) download(ctx context.Context) error {
	scripts := filepath.Join(s.opts.RepoDir, "scripts")
	shScript := filepath.Join(scripts, "download_models.sh")
	pyScript := filepath.Join(scripts, "download_models.py")

	var (
		name string
		args []string
	)
	switch {
	case s.exists(shScript):
		name, args = s.opts.Shell, []string{shScript, "models"}
	case s.exists(pyScript):
		name, args = s.opts.PythonBin, []string{pyScript}
	default:
		return fmt.Errorf("%w: neither download_models.sh nor download_models.py found in %s", ErrNoProvisioningMethod, scripts)
	}

	slog.Info("Downloading model weights", "command", name+" "+strings.Join(args, " "), "dir", s.opts.RepoDir)

	stdout, stderr, err := s.opts.Runner.Run(ctx, s.opts.RepoDir, name, args)
	if err != nil {
		slog.Error("Model download failed", "error", err, "stdout", string(stdout), "stderr", string(stderr))
		detail := string(stderr)
		if detail == "" {
			detail = string(stdout)
		}
		return fmt.Errorf("%w: %s", ErrDownloadFailed, detail)
	}

	slog.Info("Model download finished", "stdout", string(stdout), "stderr", string(stderr))
	return nil
}

// followLinks resolves path while it names a symlink. afero.Walk does not
// descend into a symlinked root.
func (s *Store) followLinks(path string) string {
	lstater, ok := s.opts.Fs.(afero.Lstater)
	if !ok {
		return path
	}
	reader, ok := s.opts.Fs.(afero.LinkReader)
	if !ok {
		return path
	}

	for range maxLinkHops {
		info, lstatCalled, err := lstater.LstatIfPossible(path)
		if err != nil || !lstatCalled || info.Mode()&os.ModeSymlink == 0 {
			return path
		}
		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return path
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = target
	}
	return path
}

func (s *Store) sourceDir() string {
	return filepath.Join(s.opts.RepoDir, "models")
}

func (s *Store) exists(path string) bool {
	ok, err := afero.Exists(s.opts.Fs, path)
	return err == nil && ok
}

// CopyTree copies src into dst on the host filesystem: directories merge
// into existing ones, files overwrite and keep their mode and times.
func CopyTree(src, dst string) error {
	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Deep
		},
		OnDirExists: func(string, string) copy.DirExistsAction {
			return copy.Merge
		},
		PreserveTimes: true,
	})
}
