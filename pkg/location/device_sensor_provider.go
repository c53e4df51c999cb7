package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const (
	// userEquivalentRangeError converts HDOP into an approximate accuracy in metres.
	userEquivalentRangeError = 5.0
	knotsToMetresPerSecond   = 0.514444
	maxSentencesPerFix       = 64
)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port        string // Serial port to which the GPS device is connected
	baudRate    int    // Baud rate for the serial communication
	readTimeout time.Duration
	now         func() time.Time
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int, readTimeout time.Duration) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:        port,
		baudRate:    baudRate,
		readTimeout: readTimeout,
		now:         time.Now,
	}
}

// Name returns the provider name attached to every fix.
func (d *DeviceSensorProvider) Name() string {
	return "gps"
}

// CheckSettings verifies the GPS device is present before updates are requested.
func (d *DeviceSensorProvider) CheckSettings(req Request) error {
	if req.Priority == PriorityNoPower {
		return fmt.Errorf("gps sensor cannot serve %s requests", req.Priority)
	}
	if _, err := os.Stat(d.port); err != nil {
		return fmt.Errorf("gps device %s unavailable: %w", d.port, err)
	}
	return nil
}

// GetLocation reads GPS data from the device and returns the device's location.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: d.readTimeout}
	s, err := serial.OpenPort(c)
	if err != nil {
		return Location{}, err
	}
	defer s.Close() // Ensure the port is closed when done

	return readFix(ctx, s, d.Name(), d.now)
}

// Close is a no-op; the serial port is opened per reading.
func (d *DeviceSensorProvider) Close() error {
	return nil
}

// readFix scans NMEA sentences until a GGA sentence with a valid fix is found.
// RMC sentences seen before it contribute speed, bearing and the UTC timestamp.
func readFix(ctx context.Context, r io.Reader, provider string, now func() time.Time) (Location, error) {
	var rmc *nmea.RMC

	scanner := bufio.NewScanner(r)
	for i := 0; i < maxSentencesPerFix && scanner.Scan(); i++ {
		if err := ctx.Err(); err != nil {
			return Location{}, err
		}

		sentence, err := nmea.Parse(scanner.Text())
		if err != nil {
			// Unsupported talkers and line noise are expected on a live port
			continue
		}

		switch s := sentence.(type) {
		case nmea.RMC:
			if s.Validity == nmea.ValidRMC {
				rmc = &s
			}
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			loc := Location{
				Latitude:  s.Latitude,
				Longitude: s.Longitude,
				Accuracy:  s.HDOP * userEquivalentRangeError,
				Altitude:  s.Altitude,
				Time:      now(),
				Provider:  provider,
			}
			if rmc != nil {
				loc.Speed = rmc.Speed * knotsToMetresPerSecond
				loc.Bearing = rmc.Course
				if ts, ok := rmcTime(*rmc); ok {
					loc.Time = ts
				}
			}
			return loc, nil
		}
	}

	// Check for any scanner errors
	if err := scanner.Err(); err != nil {
		return Location{}, err
	}

	return Location{}, errors.New("no valid GPS data found")
}

func rmcTime(rmc nmea.RMC) (time.Time, bool) {
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return time.Time{}, false
	}
	return time.Date(2000+rmc.Date.YY, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second, rmc.Time.Millisecond*int(time.Millisecond), time.UTC), true
}
