package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"presenced/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports devices from JSON
func (c *JSONCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var doc seedDocument
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return fromSeed(doc)
}

// Export exports devices to JSON
func (c *JSONCodec) Export(devices []domain.Device, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(toSeed(devices)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
