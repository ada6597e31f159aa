package config

import (
	"time"
)

// Config holds the main configuration for the worker.
type Config struct {
	Version   string          `json:"version"             yaml:"version"`
	Server    ServerConfig    `json:"server,omitempty"    yaml:"server,omitempty"`
	Inference InferenceConfig `json:"inference,omitempty" yaml:"inference,omitempty"`
	Models    ModelsConfig    `json:"models,omitempty"    yaml:"models,omitempty"`
	Log       LogConfig       `json:"log,omitempty"       yaml:"log,omitempty"`
}

// ServerConfig holds the transport settings.
type ServerConfig struct {
	HTTPPort       int `json:"http_port,omitempty"       yaml:"http_port,omitempty"`
	GRPCPort       int `json:"grpc_port,omitempty"       yaml:"grpc_port,omitempty"`
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// InferenceConfig describes how the external inference program is invoked.
type InferenceConfig struct {
	PythonBin string `json:"python_bin,omitempty" yaml:"python_bin,omitempty"`
	RepoDir   string `json:"repo_dir,omitempty"   yaml:"repo_dir,omitempty"`
	Script    string `json:"script,omitempty"     yaml:"script,omitempty"`
	// Timeout bounds one inference run. Zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ModelsConfig controls where model weights are looked for and provisioned.
type ModelsConfig struct {
	Subdir           string   `json:"subdir,omitempty"            yaml:"subdir,omitempty"`
	Dir              string   `json:"dir,omitempty"               yaml:"dir,omitempty"`
	MountCandidates  []string `json:"mount_candidates,omitempty"  yaml:"mount_candidates,omitempty"`
	WeightExtensions []string `json:"weight_extensions,omitempty" yaml:"weight_extensions,omitempty"`
}

// LogConfig holds file logging settings.
type LogConfig struct {
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
}

// ScriptPath returns the inference script joined onto the repo dir when relative.
func (c InferenceConfig) ScriptPath() string {
	return joinIfRelative(c.RepoDir, c.Script)
}
