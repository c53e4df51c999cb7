package location

import "context"

// Provider interface defines the methods for location providers
type Provider interface {
	Name() string
	GetLocation(ctx context.Context) (Location, error)
	Close() error
}

// SettingsChecker is implemented by providers that can tell whether they are
// able to satisfy a request with the current device settings.
type SettingsChecker interface {
	CheckSettings(req Request) error
}
