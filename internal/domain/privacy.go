package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// PrivacyLevel controls what may be revealed about a device's owner and whether
// sightings of the device may be written to the presence history.
// Levels are ordered from most to least revealing.
type PrivacyLevel int8

const (
	// PrivacyShowIdentityAndDevice - name and device description are public
	PrivacyShowIdentityAndDevice PrivacyLevel = iota
	// PrivacyShowIdentity - name is public, the device stays private
	PrivacyShowIdentity
	// PrivacyShowAnonymous - counted, shown under the anonymous placeholder
	PrivacyShowAnonymous
	// PrivacyHideIdentity - excluded from presence entirely
	PrivacyHideIdentity
	// PrivacyNoLog - counted like PrivacyShowAnonymous but never logged to history
	PrivacyNoLog
)

// DefaultAnonymousName is shown in place of identities that must not be revealed
const DefaultAnonymousName = "Anonymous"

var privacyNames = map[PrivacyLevel]string{
	PrivacyShowIdentityAndDevice: "show_identity_and_device",
	PrivacyShowIdentity:          "show_identity",
	PrivacyShowAnonymous:         "show_anonymous",
	PrivacyHideIdentity:          "hide_identity",
	PrivacyNoLog:                 "no_log",
}

// AllPrivacyLevels lists every level in order
func AllPrivacyLevels() []PrivacyLevel {
	return []PrivacyLevel{
		PrivacyShowIdentityAndDevice,
		PrivacyShowIdentity,
		PrivacyShowAnonymous,
		PrivacyHideIdentity,
		PrivacyNoLog,
	}
}

// String returns the level's name
func (p PrivacyLevel) String() string {
	if name, ok := privacyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("privacy(%d)", int8(p))
}

// Valid reports whether p is one of the five defined levels
func (p PrivacyLevel) Valid() bool {
	return p >= PrivacyShowIdentityAndDevice && p <= PrivacyNoLog
}

// MoreRevealingThan reports whether p strictly outranks other in the
// most-open-wins reduction (lower ordinal wins).
func (p PrivacyLevel) MoreRevealingThan(other PrivacyLevel) bool {
	return p < other
}

// Counted reports whether a device at this level takes part in presence aggregation
func (p PrivacyLevel) Counted() bool {
	return p != PrivacyHideIdentity
}

// Loggable reports whether a sighting at this level may be written to history
func (p PrivacyLevel) Loggable() bool {
	return p != PrivacyHideIdentity && p != PrivacyNoLog
}

// RevealsIdentity reports whether the owner's real name may be shown
func (p PrivacyLevel) RevealsIdentity() bool {
	return p == PrivacyShowIdentityAndDevice || p == PrivacyShowIdentity
}

// RevealsDevice reports whether the device description may be shown alongside the name
func (p PrivacyLevel) RevealsDevice() bool {
	return p == PrivacyShowIdentityAndDevice
}

// DisplayName returns the name to show for identity at this level
func (p PrivacyLevel) DisplayName(identity, anonymous string) string {
	if p.RevealsIdentity() {
		return identity
	}
	return anonymous
}

// ParsePrivacyLevel accepts either the numeric ordinal (0-4) or the level name
func ParsePrivacyLevel(s string) (PrivacyLevel, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	if n, err := strconv.Atoi(s); err == nil {
		level := PrivacyLevel(n)
		if !level.Valid() {
			return 0, fmt.Errorf("invalid privacy level %d", n)
		}
		return level, nil
	}

	for level, name := range privacyNames {
		if name == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid privacy level %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (p PrivacyLevel) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid privacy level %d", int8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *PrivacyLevel) UnmarshalText(text []byte) error {
	level, err := ParsePrivacyLevel(string(text))
	if err != nil {
		return err
	}
	*p = level
	return nil
}

// UnmarshalJSON accepts both the numeric ordinal and the level name
func (p *PrivacyLevel) UnmarshalJSON(data []byte) error {
	return p.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}
