package grid

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a YAML (or JSON) case, applies default settings for absent
// fields and validates the result.
func Decode(r io.Reader) (*System, error) {
	sys := &System{Settings: DefaultSettings()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sys); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &InputDataError{Reason: "empty case file"}
		}
		return nil, &InputDataError{Reason: "failed to decode case", Err: err}
	}
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	return sys, nil
}

// LoadFile reads and validates the case stored at path.
func LoadFile(path string) (*System, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open case file: %w", err)
	}
	defer f.Close()

	sys, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return sys, nil
}

// WriteFile stores the case as YAML.
func (s *System) WriteFile(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write case file: %w", err)
	}
	return nil
}
