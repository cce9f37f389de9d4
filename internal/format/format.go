package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Plain = "plain"
	JSON  = "json"
	YAML  = "yaml"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes JSON output.
type JSONFormatter struct{}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(payload)
}

// YAMLFormatter writes YAML output. Payloads go through their JSON encoding
// first so field names match the API.
type YAMLFormatter struct{}

// Write writes YAML payload to a writer.
func (f YAMLFormatter) Write(w io.Writer, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// ParseName validates an output format name.
func ParseName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "", Plain:
		return Plain, nil
	case JSON, YAML:
		return name, nil
	default:
		return "", fmt.Errorf("invalid format %q (want plain, json or yaml)", raw)
	}
}

// For returns the structured formatter for name, or nil for plain output.
func For(name string) Formatter {
	switch name {
	case JSON:
		return JSONFormatter{}
	case YAML:
		return YAMLFormatter{}
	default:
		return nil
	}
}
