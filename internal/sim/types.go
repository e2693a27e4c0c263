package sim

import (
	"fmt"
	"strings"
)

// Terminal is one end of the route.
type Terminal int

const (
	SLZ Terminal = iota
	CUJ
)

const terminalCount = 2

// Terminals lists both ends of the route in index order.
var Terminals = [terminalCount]Terminal{SLZ, CUJ}

func (t Terminal) String() string {
	switch t {
	case SLZ:
		return "SLZ"
	case CUJ:
		return "CUJ"
	default:
		return fmt.Sprintf("Terminal(%d)", int(t))
	}
}

// Opposite returns the other end of the route.
func (t Terminal) Opposite() Terminal {
	if t == SLZ {
		return CUJ
	}
	return SLZ
}

func (t Terminal) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Terminal) UnmarshalText(b []byte) error {
	parsed, err := ParseTerminal(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTerminal parses a terminal code, case-insensitively.
func ParseTerminal(s string) (Terminal, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SLZ":
		return SLZ, nil
	case "CUJ":
		return CUJ, nil
	}
	return 0, fmt.Errorf("unknown terminal %q", s)
}

// terminalAt assigns initial terminals by index parity.
func terminalAt(index int) Terminal {
	if index%2 == 0 {
		return SLZ
	}
	return CUJ
}

// Direction is the heading of a crossing ferry.
type Direction int

const (
	SLZToCUJ Direction = iota
	CUJToSLZ
)

// departing returns the heading of a ferry leaving from.
func departing(from Terminal) Direction {
	if from == SLZ {
		return SLZToCUJ
	}
	return CUJToSLZ
}

// From returns the terminal the crossing started at.
func (d Direction) From() Terminal {
	if d == SLZToCUJ {
		return SLZ
	}
	return CUJ
}

// To returns the destination terminal.
func (d Direction) To() Terminal {
	return d.From().Opposite()
}

func (d Direction) String() string {
	return d.From().String() + "_TO_" + d.To().String()
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// VehicleClass distinguishes cars from trucks.
type VehicleClass string

const (
	Car   VehicleClass = "car"
	Truck VehicleClass = "truck"
)

// Vehicle is a single arrival. It never changes after creation.
type Vehicle struct {
	ID        uint64       `json:"id"`
	Class     VehicleClass `json:"type"`
	ArrivedAt float64      `json:"arrivalTime"`
	Origin    Terminal     `json:"origin"`
}
