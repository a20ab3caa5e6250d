// Package codec reads and writes device registry seeds.
package codec

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"presenced/internal/domain"
)

// ErrMissingPrivacy is returned for seed entries without an explicit privacy
// level. A missing level would otherwise decode as the most revealing one.
var ErrMissingPrivacy = errors.New("privacy is required")

// Importer parses registry devices from a serialized document
type Importer interface {
	Parse(r io.Reader) ([]domain.Device, error)
	Format() string
}

// Exporter writes registry devices to a serialized document
type Exporter interface {
	Export(devices []domain.Device, w io.Writer) error
	Format() string
}

// ForPath picks an importer from a seed file's extension
func ForPath(path string) (Importer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLCodec(), nil
	case ".json":
		return NewJSONCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported seed format %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// seedDocument is the layout shared by every format:
//
//	devices:
//	  - mac: aa:bb:cc:dd:ee:01
//	    identity: alice
//	    privacy: show_identity
type seedDocument struct {
	Devices []seedDevice `json:"devices" yaml:"devices"`
}

type seedDevice struct {
	MAC         string               `json:"mac" yaml:"mac"`
	Identity    string               `json:"identity" yaml:"identity"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
	Privacy     *domain.PrivacyLevel `json:"privacy" yaml:"privacy"`
}

func toSeed(devices []domain.Device) seedDocument {
	doc := seedDocument{Devices: make([]seedDevice, 0, len(devices))}
	for _, d := range devices {
		privacy := d.Privacy
		doc.Devices = append(doc.Devices, seedDevice{
			MAC:         d.HardwareAddress,
			Identity:    d.Identity,
			Description: d.Description,
			Privacy:     &privacy,
		})
	}
	return doc
}

// fromSeed canonicalizes every parsed device and rejects the first invalid
// entry, reporting its position in the document.
func fromSeed(doc seedDocument) ([]domain.Device, error) {
	out := make([]domain.Device, 0, len(doc.Devices))
	for i, sd := range doc.Devices {
		if sd.Privacy == nil {
			return nil, fmt.Errorf("device %d (%s): %w", i+1, sd.MAC, ErrMissingPrivacy)
		}
		device, err := domain.NewDevice(sd.MAC, strings.TrimSpace(sd.Identity), sd.Description, *sd.Privacy)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i+1, err)
		}
		out = append(out, *device)
	}
	return out, nil
}
