package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Gnosis-MEP/benchmark-tools/eval/controller"
)

// readConfig reads a YAML or JSON document from path, or from stdin when
// path is empty or "-".
func readConfig(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// asYAML prepares a YAML or JSON document for the YAML decoder. JSON is a
// flow mapping, where tabs are valid separators; only leading whitespace
// needs trimming.
func asYAML(data []byte) []byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '[' {
		return data
	}
	return trimmed
}

// decodeStrict decodes a config document rejecting unknown keys.
func decodeStrict(data []byte, out interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(asYAML(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// loadInput parses a benchmark request:
// {benchmark, target_system, result_webhook}.
func loadInput(data []byte) (*controller.Input, error) {
	var in controller.Input
	if err := decodeStrict(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// loadKwargs parses a kwargs document into a node for the module registry.
func loadKwargs(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(asYAML(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing kwargs: %w", err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{}, nil
	}
	return doc.Content[0], nil
}
