package job

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/rfworker/internal/archive"
)

func TestDecodeInput(t *testing.T) {
	pdb := base64.StdEncoding.EncodeToString([]byte("ATOM"))

	in, err := DecodeInput(map[string]any{
		"pdb_file":             pdb,
		"commands":             []any{"inference.num_designs=1"},
		"model_directory_path": "/models",
	})
	require.NoError(t, err)
	assert.Equal(t, &Input{
		PDB:                []byte("ATOM"),
		Commands:           []string{"inference.num_designs=1"},
		ModelDirectoryPath: "/models",
	}, in)
}

func TestDecodeInput_Errors(t *testing.T) {
	pdb := base64.StdEncoding.EncodeToString([]byte("ATOM"))

	tests := []struct {
		name  string
		input map[string]any
		field string
		want  error
	}{
		{name: "nil input", input: nil, field: "input", want: ErrMissingField},
		{name: "missing pdb", input: map[string]any{}, field: FieldPDBFile, want: ErrMissingField},
		{name: "null pdb", input: map[string]any{"pdb_file": nil}, field: FieldPDBFile, want: ErrMissingField},
		{name: "empty pdb", input: map[string]any{"pdb_file": ""}, field: FieldPDBFile, want: ErrMissingField},
		{name: "non-string pdb", input: map[string]any{"pdb_file": 12.0}, field: FieldPDBFile, want: ErrInvalidField},
		{name: "bad base64", input: map[string]any{"pdb_file": "%%%"}, field: FieldPDBFile, want: archive.ErrInvalidEncoding},
		{name: "commands not a list", input: map[string]any{"pdb_file": pdb, "commands": "a=b"}, field: FieldCommands, want: ErrInvalidField},
		{name: "model dir not a string", input: map[string]any{"pdb_file": pdb, "model_directory_path": 1.0}, field: FieldModelDirectoryPath, want: ErrInvalidField},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInput(tc.input)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tc.field, decodeErr.Field)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecodeInput_BadBase64IsEncodingError(t *testing.T) {
	_, err := DecodeInput(map[string]any{"pdb_file": "%%%"})
	assert.ErrorIs(t, err, archive.ErrInvalidEncoding)
}

func TestDecodeInput_OptionalFieldsMayBeNull(t *testing.T) {
	in, err := DecodeInput(map[string]any{
		"pdb_file":             base64.StdEncoding.EncodeToString([]byte("ATOM")),
		"commands":             nil,
		"model_directory_path": nil,
	})
	require.NoError(t, err)
	assert.Nil(t, in.Commands)
	assert.Empty(t, in.ModelDirectoryPath)
}
