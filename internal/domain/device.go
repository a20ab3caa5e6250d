package domain

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Device is a registry record binding a hardware address to an identity
type Device struct {
	ID              int64        `json:"id" yaml:"-"`
	HardwareAddress string       `json:"mac" yaml:"mac"`
	Identity        string       `json:"identity" yaml:"identity"`
	Description     string       `json:"description,omitempty" yaml:"description,omitempty"`
	Privacy         PrivacyLevel `json:"privacy" yaml:"privacy"`
	Present         bool         `json:"present" yaml:"-"` // derived from recent sightings, never stored
	CreatedAt       *time.Time   `json:"created_at,omitempty" yaml:"-"`
}

// NewDevice creates a device with a normalized hardware address
func NewDevice(mac, identity, description string, privacy PrivacyLevel) (*Device, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	d := &Device{
		HardwareAddress: normalized,
		Identity:        identity,
		Description:     description,
		Privacy:         privacy,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks that the record can be stored
func (d *Device) Validate() error {
	if d.HardwareAddress == "" {
		return fmt.Errorf("hardware address is required")
	}
	if strings.TrimSpace(d.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if !d.Privacy.Valid() {
		return fmt.Errorf("invalid privacy level %d", int8(d.Privacy))
	}
	return nil
}

// PublicDescription returns the description only if the privacy level allows it
func (d *Device) PublicDescription() string {
	if d.Privacy.RevealsDevice() {
		return d.Description
	}
	return ""
}

// NormalizeMAC returns the canonical lower-case, colon separated form of a
// hardware address. Dash and dot notations are accepted.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return "", fmt.Errorf("invalid hardware address %q: %w", mac, err)
	}
	return strings.ToLower(hw.String()), nil
}
