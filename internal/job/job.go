// Package job runs one inference job end to end: decode, provision the
// model directory, stage a workspace, execute, and package the output.
package job

import (
	"fmt"

	"github.com/ekisa-team/rfworker/internal/archive"
	"github.com/ekisa-team/rfworker/internal/mapsafe"
)

// Input field names.
const (
	FieldPDBFile            = "pdb_file"
	FieldCommands           = "commands"
	FieldModelDirectoryPath = "model_directory_path"
)

// Job is the envelope delivered by the serverless host.
type Job struct {
	ID    string         `json:"id,omitempty"`
	Input map[string]any `json:"input"`
}

// Input is a decoded job request.
type Input struct {
	PDB                []byte
	Commands           []string
	ModelDirectoryPath string
}

// Output is the result object handed back to the host. Successful runs set
// ResultZipB64; failed runs set Error.
type Output struct {
	ResultZipB64 string  `json:"result_zip_b64,omitempty"`
	Stdout       *string `json:"stdout,omitempty"`
	Stderr       *string `json:"stderr,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Status is the terminal state reported in a Response.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Response wraps an Output with the job id and timing.
type Response struct {
	ID            string  `json:"id"`
	Status        Status  `json:"status"`
	Output        *Output `json:"output"`
	ExecutionTime int64   `json:"executionTime"`
}

// DecodeInput validates and decodes the raw input object.
func DecodeInput(raw map[string]any) (*Input, error) {
	if raw == nil {
		return nil, &DecodeError{Field: "input", Err: ErrMissingField}
	}

	encoded, ok := mapsafe.String(raw, FieldPDBFile)
	if !ok {
		return nil, &DecodeError{Field: FieldPDBFile, Err: fmt.Errorf("%w: expected a base64 string", ErrInvalidField)}
	}
	if encoded == "" {
		return nil, &DecodeError{Field: FieldPDBFile, Err: ErrMissingField}
	}
	pdb, err := archive.Decode(encoded)
	if err != nil {
		return nil, &DecodeError{Field: FieldPDBFile, Err: err}
	}

	commands, ok := mapsafe.Strings(raw, FieldCommands)
	if !ok {
		return nil, &DecodeError{Field: FieldCommands, Err: fmt.Errorf("%w: expected a list of strings", ErrInvalidField)}
	}

	modelDir, ok := mapsafe.String(raw, FieldModelDirectoryPath)
	if !ok {
		return nil, &DecodeError{Field: FieldModelDirectoryPath, Err: fmt.Errorf("%w: expected a string", ErrInvalidField)}
	}

	return &Input{
		PDB:                pdb,
		Commands:           commands,
		ModelDirectoryPath: modelDir,
	}, nil
}

func stringPtr(s string) *string {
	return &s
}
