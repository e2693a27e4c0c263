package sim

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidFleetSize = errors.New("fleet size must be >= 0")
	ErrInvalidCapacity  = errors.New("ferry capacity must be >= 1")
)

// HourRange is a half-open [Start, End) range of clock hours.
type HourRange struct {
	Start int `json:"start" mapstructure:"start"`
	End   int `json:"end" mapstructure:"end"`
}

// Contains reports whether hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.Start && hour < r.End
}

// Minutes returns the length of the range; inverted ranges count as zero.
func (r HourRange) Minutes() float64 {
	return float64(max(r.End-r.Start, 0)) * 60
}

// Config describes one simulation run. It is read-only during a tick.
type Config struct {
	FerryCount    int `json:"ferryCount" mapstructure:"ferryCount"`
	FerryCapacity int `json:"ferryCapacity" mapstructure:"ferryCapacity"`

	// Operating window in clock hours; simulated time 0 is OperationStart:00.
	OperationStart int `json:"operationStart" mapstructure:"operationStart"`
	OperationEnd   int `json:"operationEnd" mapstructure:"operationEnd"`

	DailyArrivals int         `json:"dailyArrivals" mapstructure:"dailyArrivals"`
	PeakHours     []HourRange `json:"peakHours" mapstructure:"peakHours"`
	PeakShare     float64     `json:"peakPercentage" mapstructure:"peakPercentage"`
	CarShare      float64     `json:"carPercentage" mapstructure:"carPercentage"`

	// Service times in simulated minutes.
	EmbarkMinutes    float64 `json:"embarkTimePerVehicle" mapstructure:"embarkTimePerVehicle"`
	CrossingMinutes  float64 `json:"crossingTime" mapstructure:"crossingTime"`
	DisembarkMinutes float64 `json:"disembarkTimePerVehicle" mapstructure:"disembarkTimePerVehicle"`

	// MaintenanceInterval is carried for reporting; scheduled maintenance is
	// driven by the night window, not by this interval.
	MaintenanceInterval float64 `json:"maintenanceInterval" mapstructure:"maintenanceInterval"`
	MaintenanceDuration float64 `json:"maintenanceDuration" mapstructure:"maintenanceDuration"`

	// DowntimeProbability is the chance a ferry breaks down at least once per
	// operating day.
	DowntimeProbability float64 `json:"downtimeProbability" mapstructure:"downtimeProbability"`

	// MinDepartureFillRatio is the fraction of capacity that must be boarded
	// before a loading ferry departs.
	MinDepartureFillRatio float64 `json:"minDepartureFillRatio" mapstructure:"minDepartureFillRatio"`
}

// DefaultConfig returns the stock route configuration.
func DefaultConfig() Config {
	return Config{
		FerryCount:            4,
		FerryCapacity:         50,
		OperationStart:        6,
		OperationEnd:          22,
		DailyArrivals:         1200,
		PeakHours:             []HourRange{{Start: 7, End: 9}, {Start: 17, End: 19}},
		PeakShare:             0.4,
		CarShare:              0.8,
		EmbarkMinutes:         0.25,
		CrossingMinutes:       80,
		DisembarkMinutes:      0.25,
		MaintenanceInterval:   30,
		MaintenanceDuration:   240,
		DowntimeProbability:   0.05,
		MinDepartureFillRatio: 1.0,
	}
}

// Validate checks the values that size persistent structures.
func (c Config) Validate() error {
	if c.FerryCount < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFleetSize, c.FerryCount)
	}
	if c.FerryCapacity < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.FerryCapacity)
	}
	return nil
}

// HourAt returns the clock hour at elapsed simulated minutes t.
func (c Config) HourAt(t float64) int {
	return c.OperationStart + int(math.Floor(t/60))
}

// IsPeak reports whether t falls inside any configured peak range.
func (c Config) IsPeak(t float64) bool {
	hour := c.HourAt(t)
	for _, r := range c.PeakHours {
		if r.Contains(hour) {
			return true
		}
	}
	return false
}

// OperatingMinutes is the length of the operating window.
func (c Config) OperatingMinutes() float64 {
	return float64(max(c.OperationEnd-c.OperationStart, 0)) * 60
}

// PeakMinutes is the summed length of all peak ranges.
func (c Config) PeakMinutes() float64 {
	var total float64
	for _, r := range c.PeakHours {
		total += r.Minutes()
	}
	return total
}

// ArrivalRate returns expected arrivals per simulated minute at t.
func (c Config) ArrivalRate(t float64) float64 {
	daily := float64(c.DailyArrivals)
	if c.IsPeak(t) {
		return rate(daily*c.PeakShare, c.PeakMinutes())
	}
	return rate(daily*(1-c.PeakShare), c.OperatingMinutes()-c.PeakMinutes())
}

// rate divides volume over minutes; degenerate inputs give zero.
func rate(volume, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	r := volume / minutes
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return 0
	}
	return r
}

// departureThreshold returns the boarded count a ferry of the given
// capacity needs before it may leave. ok is false when it never may.
func (c Config) departureThreshold(capacity int) (need int, ok bool) {
	if capacity <= 0 {
		return 0, false
	}
	ratio := c.MinDepartureFillRatio
	if math.IsNaN(ratio) {
		ratio = 1
	}
	ratio = min(max(ratio, 0), 1)
	need = int(math.Ceil(ratio * float64(capacity)))
	return max(need, 1), true
}
