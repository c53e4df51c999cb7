package constants

import "time"

// Remote store keys
const (
	// StatusKey holds the status record mirrored into the indicator.
	StatusKey = "location"
	// LocationKey receives every published fix; one global slot.
	LocationKey = "newLocation"
)

// Positioning request. The cadence is fixed.
const (
	LocationInterval        = 300 * time.Second
	FastestLocationInterval = 300 * time.Second
)

// Persistent indicator
const (
	NotificationChannelID = "PERSISTENT"
	NotificationID        = 42
	PlaceholderTitle      = "Where is"
	DefaultTimeFormat     = "15:04"
)

// Embedded web content
const (
	HomeURL        = "https://whereis.akp.tools/"
	FirstPartyHost = "whereis.akp.tools"
)

// PublisherState is the lifecycle state of the location publisher.
type PublisherState string

const (
	StateCreated          PublisherState = "created"
	StateSettingsChecking PublisherState = "settings_checking"
	StateRunning          PublisherState = "running"
	StateStopped          PublisherState = "stopped"
)
