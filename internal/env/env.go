package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/rfworker/internal/envvar"
)

// Environment is the runtime environment the worker runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// FromEnv reads the environment from RFWORKER_ENV, defaulting to production.
func FromEnv() Environment {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envvar.RFWorkerEnv))) {
	case "dev", "development", "local":
		return Development
	default:
		return Production
	}
}

// IsDevelopment reports whether e is the development environment.
func (e Environment) IsDevelopment() bool {
	return e == Development
}
