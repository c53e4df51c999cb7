package models

import (
	"github.com/benmeehan/whereis-agent/pkg/location"
)

// LocationFix is the record written to the remote location key.
type LocationFix struct {
	Provider  string  `json:"provider"`
	Time      int64   `json:"time"` // Milliseconds since epoch
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed"`
	Bearing   float64 `json:"bearing"`
}

// NewLocationFix captures a provider sample.
func NewLocationFix(loc location.Location) LocationFix {
	return LocationFix{
		Provider:  loc.Provider,
		Time:      loc.Time.UnixMilli(),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Accuracy:  loc.Accuracy,
		Altitude:  loc.Altitude,
		Speed:     loc.Speed,
		Bearing:   loc.Bearing,
	}
}
