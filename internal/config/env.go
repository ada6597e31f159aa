package config

import (
	"log/slog"
	"strconv"

	"github.com/ekisa-team/rfworker/internal/envvar"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment overrides onto cfg. Mount points taken from
// the environment are placed ahead of the configured candidates, in the
// order listed in envvar.MountPaths.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(envvar.RFPythonBin); ok {
		cfg.Inference.PythonBin = v
	}
	if v, ok := get(envvar.RFRepoDir); ok {
		cfg.Inference.RepoDir = v
	}
	if v, ok := get(envvar.RFModelSubdir); ok {
		cfg.Models.Subdir = v
	}
	if v, ok := get(envvar.RFModelDir); ok {
		cfg.Models.Dir = v
	}
	if v, ok := get(envvar.RFWorkerHTTPPort); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = port
		} else {
			slog.Warn("Ignoring invalid port", "env", envvar.RFWorkerHTTPPort, "value", v)
		}
	}
	if v, ok := get(envvar.RFWorkerGRPCPort); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = port
		} else {
			slog.Warn("Ignoring invalid port", "env", envvar.RFWorkerGRPCPort, "value", v)
		}
	}

	var mounts []string
	for _, name := range envvar.MountPaths {
		if v, ok := get(name); ok {
			mounts = append(mounts, v)
		}
	}
	if len(mounts) > 0 {
		cfg.Models.MountCandidates = append(mounts, cfg.Models.MountCandidates...)
	}
}
