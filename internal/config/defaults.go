package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	defaultHTTPPort       = 8080
	defaultGRPCPort       = 9090
	defaultMaxConcurrency = 1
	defaultPythonBin      = "python"
	defaultRepoDir        = "/app/RFdiffusion"
	defaultScript         = "scripts/run_inference.py"
	defaultModelSubdir    = "rfdiffusion_models"
)

// DefaultMountCandidates are checked after any mount point taken from the environment.
var DefaultMountCandidates = []string{
	"/workspace/network_storage",
	"/workspace",
}

// DefaultWeightExtensions identify model weight files.
var DefaultWeightExtensions = []string{".pt", ".ckpt", ".pkl"}

// Default returns a config with every field set to its default.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			HTTPPort:       defaultHTTPPort,
			GRPCPort:       defaultGRPCPort,
			MaxConcurrency: defaultMaxConcurrency,
		},
		Inference: InferenceConfig{
			PythonBin: defaultPythonBin,
			RepoDir:   defaultRepoDir,
			Script:    defaultScript,
		},
		Models: ModelsConfig{
			Subdir:           defaultModelSubdir,
			MountCandidates:  append([]string(nil), DefaultMountCandidates...),
			WeightExtensions: append([]string(nil), DefaultWeightExtensions...),
		},
		Log: LogConfig{
			File: filepath.Join("logs", "rfworker.log"),
		},
	}
}

// DefaultConfigPath returns the default path for the rfworker config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "rfworker", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "rfworker")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "rfworker")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "rfworker")
		}
		return filepath.Join(home, ".config", "rfworker")
	}
}

func joinIfRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
