package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceSelector picks a capture device by index or name. The zero value
// selects the system default source.
type DeviceSelector struct {
	raw string
}

func ParseSelector(s string) DeviceSelector {
	return DeviceSelector{raw: strings.TrimSpace(s)}
}

func (s DeviceSelector) IsDefault() bool { return s.raw == "" || s.raw == "default" }

func (s DeviceSelector) String() string {
	if s.IsDefault() {
		return "default"
	}
	return s.raw
}

type DeviceNotFoundError struct {
	Selector  string
	Available int
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("capture device %q not found (%d available)", e.Selector, e.Available)
}

// Resolve maps the selector onto one of devices. A nil result with a nil
// error means the system default. Index selectors are zero-based; names
// match exactly first, then case-insensitively by substring.
func (s DeviceSelector) Resolve(devices []DeviceInfo) (*DeviceInfo, error) {
	if s.IsDefault() {
		return nil, nil
	}
	if idx, err := strconv.Atoi(s.raw); err == nil {
		if idx < 0 || idx >= len(devices) {
			return nil, &DeviceNotFoundError{Selector: s.raw, Available: len(devices)}
		}
		return &devices[idx], nil
	}
	for i := range devices {
		if devices[i].Name == s.raw || devices[i].ID == s.raw {
			return &devices[i], nil
		}
	}
	needle := strings.ToLower(s.raw)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), needle) {
			return &devices[i], nil
		}
	}
	return nil, &DeviceNotFoundError{Selector: s.raw, Available: len(devices)}
}
