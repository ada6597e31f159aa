package modelstore

import "errors"

// Error definitions for the modelstore package.
var (
	ErrNoProvisioningMethod = errors.New("no provisioning method available")
	ErrDownloadFailed       = errors.New("model download script failed")
	ErrSourceMissing        = errors.New("model download script completed but source directory does not exist")
	ErrNoWeights            = errors.New("model download finished but no weight files found in target directory")
)

// ProvisionError reports why a model directory could not be made ready.
type ProvisionError struct {
	Path string
	Err  error
}

func (e *ProvisionError) Error() string {
	return e.Err.Error()
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}
