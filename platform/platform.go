// Package platform classifies the host a session records for. The class
// drives capture presets and recording media preferences.
package platform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownClass indicates an unrecognized class name.
var ErrUnknownClass = errors.New("unknown device class")

// DeviceClass is a coarse host category.
type DeviceClass int

const (
	Desktop DeviceClass = iota
	Android
	IOS
)

func (c DeviceClass) String() string {
	switch c {
	case Android:
		return "android"
	case IOS:
		return "ios"
	default:
		return "desktop"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c DeviceClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *DeviceClass) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Parse converts a class name. The empty string is Desktop.
func Parse(s string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desktop":
		return Desktop, nil
	case "android":
		return Android, nil
	case "ios":
		return IOS, nil
	default:
		return Desktop, fmt.Errorf("%w: %q", ErrUnknownClass, s)
	}
}

var (
	iosAgent     = regexp.MustCompile(`iPad|iPhone|iPod`)
	androidAgent = regexp.MustCompile(`Android`)
)

// FromUserAgent classifies a browser user agent string.
func FromUserAgent(ua string) DeviceClass {
	switch {
	case iosAgent.MatchString(ua):
		return IOS
	case androidAgent.MatchString(ua):
		return Android
	default:
		return Desktop
	}
}
