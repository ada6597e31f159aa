package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

const schemaURL = "rfworker.v1.schema.json"

//go:embed rfworker.v1.schema.json
var schemaJSON []byte

// Load reads the config at path, falling back to defaults when the file does
// not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		loaded, err := LoadAndValidate(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// LoadAndValidate loads and validates the configuration. Fields absent from
// the file keep their defaults.
func LoadAndValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return config, nil
}

// Validate checks raw YAML against the embedded JSON schema.
func Validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	// The schema validator expects JSON-shaped values.
	doc, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config: failed to convert YAML to JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("config: failed to convert YAML to JSON: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("config: config validation failed: %w", err)
	}

	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaURL)
}
