package location

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// geolocator is the subset of the Maps client used by the provider.
type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client     geolocator // Maps API client for making geolocation requests
	modemIndex int
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, timeout time.Duration, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
		timeout:    timeout,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Name returns the provider name attached to every fix.
func (g *GoogleGeolocationProvider) Name() string {
	return "network"
}

// CheckSettings rejects requests the network provider cannot meet.
func (g *GoogleGeolocationProvider) CheckSettings(req Request) error {
	if req.Priority == PriorityHighAccuracy {
		return errors.New("network geolocation cannot serve high_accuracy requests")
	}
	return nil
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// Radio data is best effort, the API falls back to the caller's IP
	wifiAPs, err := getWiFiAccessPoints(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("WiFi scan unavailable, geolocating without access points")
	}
	cellTowers, err := getCellTowers(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Int("modem_index", g.modemIndex).Msg("Cell data unavailable, geolocating without cell towers")
	}

	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: wifiAPs,
		CellTowers:       cellTowers,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Time:      g.now(),
		Provider:  g.Name(),
	}, nil
}

// Close is a no-op for the HTTP based provider.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
