package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ferryqueue/ferrysim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Terminal positions are kept in WGS84 (EPSG:4326) and projected to
// EPSG:3857 for storage and route geometry.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// maxMercatorLatitude is the latitude limit of EPSG:3857.
const maxMercatorLatitude = 85.05112878

// Terminal is a named ferry landing.
type Terminal struct {
	Code      string
	Name      string
	Longitude float64
	Latitude  float64
}

// ParseLonLat parses a string in the format "long,lat" into WGS84 degrees.
func ParseLonLat(coords string) (longitude, latitude float64, err error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return 0, 0, ErrInvalidCoordinates
	}
	longitude, err = strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	latitude, err = strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinates
	}
	if !validLonLat(longitude, latitude) {
		return 0, 0, ErrInvalidCoordinates
	}
	return longitude, latitude, nil
}

func validLonLat(longitude, latitude float64) bool {
	return !math.IsNaN(longitude) && !math.IsNaN(latitude) &&
		math.Abs(longitude) <= 180 && math.Abs(latitude) <= maxMercatorLatitude
}

// NewTerminal builds a terminal from a "long,lat" position.
func NewTerminal(code, name, position string) (Terminal, error) {
	lon, lat, err := ParseLonLat(position)
	if err != nil {
		return Terminal{}, fmt.Errorf("terminal %s: %w", code, err)
	}
	return Terminal{Code: code, Name: name, Longitude: lon, Latitude: lat}, nil
}

// Coords3857From4326 creates a GPS point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if !validLonLat(longitude, latitude) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point, err = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	return point, nil
}

// Info projects t into the record stored with each run.
func (t Terminal) Info() (core.TerminalInfo, error) {
	p, err := Coords3857From4326(t.Longitude, t.Latitude)
	if err != nil {
		return core.TerminalInfo{}, fmt.Errorf("terminal %s: %w", t.Code, err)
	}
	xy, _ := p.XY()
	return core.TerminalInfo{
		Code:      t.Code,
		Name:      t.Name,
		Longitude: t.Longitude,
		Latitude:  t.Latitude,
		X:         xy.X,
		Y:         xy.Y,
	}, nil
}

// Route is the projected line between terminals.
type Route struct {
	Terminals []core.TerminalInfo
	Line      geom.LineString
	// Km is the ground length. Mercator stretches distances by 1/cos(lat),
	// so the planar length is scaled back at the mean latitude.
	Km float64
}

// NewRoute projects the terminals in order and measures the line.
func NewRoute(terminals ...Terminal) (Route, error) {
	if len(terminals) < 2 {
		return Route{}, fmt.Errorf("route needs at least 2 terminals, got %d", len(terminals))
	}

	infos := make([]core.TerminalInfo, len(terminals))
	flat := make([]float64, 0, len(terminals)*2)
	var latSum float64
	for i, t := range terminals {
		info, err := t.Info()
		if err != nil {
			return Route{}, err
		}
		infos[i] = info
		flat = append(flat, info.X, info.Y)
		latSum += t.Latitude
	}

	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return Route{}, fmt.Errorf("route line: %w", err)
	}
	meanLat := latSum / float64(len(terminals)) * math.Pi / 180
	return Route{
		Terminals: infos,
		Line:      line,
		Km:        line.Length() * math.Cos(meanLat) / 1000,
	}, nil
}
