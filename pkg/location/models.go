package location

import "time"

// Location represents a single positioning sample reported by a provider.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // Estimated horizontal accuracy in metres
	Altitude  float64
	Speed     float64 // Metres per second
	Bearing   float64 // Degrees clockwise from true north
	Time      time.Time
	Provider  string
}

// Priority is the power/accuracy tier requested from the positioning subsystem.
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalancedPowerAccuracy
	PriorityLowPower
	PriorityNoPower
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalancedPowerAccuracy:
		return "balanced_power_accuracy"
	case PriorityLowPower:
		return "low_power"
	case PriorityNoPower:
		return "no_power"
	default:
		return "unknown"
	}
}

// Request describes the cadence and tier of location updates.
type Request struct {
	Interval        time.Duration
	FastestInterval time.Duration
	Priority        Priority
}
