package location

import (
	"os"

	"github.com/rs/zerolog"
)

// FineLocation is the capability needed to read precise fixes.
const FineLocation = "fine_location"

// DevicePermission grants fine location when the GPS device can be opened
// for reading. An empty device path means no local sensor is used and the
// capability is granted unconditionally.
type DevicePermission struct {
	devicePath string
	logger     zerolog.Logger
}

// NewDevicePermission creates a permission checker for the given device.
func NewDevicePermission(devicePath string, logger zerolog.Logger) *DevicePermission {
	return &DevicePermission{devicePath: devicePath, logger: logger}
}

// Request reports whether capability is granted.
func (p *DevicePermission) Request(capability string) bool {
	if capability != FineLocation {
		return false
	}
	if p.devicePath == "" {
		return true
	}
	f, err := os.Open(p.devicePath)
	if err != nil {
		p.logger.Warn().Err(err).Str("device", p.devicePath).Msg("Location permission not granted")
		return false
	}
	_ = f.Close()
	return true
}
