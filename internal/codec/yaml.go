package codec

import (
	"errors"
	"fmt"
	"io"

	"presenced/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse imports devices from YAML. An empty document yields no devices.
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var doc seedDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return fromSeed(doc)
}

// Export exports devices to YAML
func (c *YAMLCodec) Export(devices []domain.Device, w io.Writer) error {
	doc := toSeed(devices)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
