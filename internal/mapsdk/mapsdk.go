// Package mapsdk defines the capabilities the dashboard consumes from a mapping
// SDK and ships an in-process implementation whose state is rendered to JSON for
// the browser.
package mapsdk

import (
	"context"
	"errors"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

var (
	// ErrMapLoad is returned when the SDK cannot be initialised.
	ErrMapLoad = errors.New("error loading map")
	// ErrUnknownMarker is returned when clicking a marker that is not on the map.
	ErrUnknownMarker = errors.New("marker is not on the map")
)

// Icon describes a vector marker symbol.
type Icon struct {
	Path         string  `json:"path"`
	FillColor    string  `json:"fillColor"`
	FillOpacity  float64 `json:"fillOpacity"`
	StrokeColor  string  `json:"strokeColor"`
	StrokeWeight float64 `json:"strokeWeight"`
	Scale        float64 `json:"scale"`
}

// Label is text drawn on top of a marker icon.
type Label struct {
	Text     string `json:"text"`
	Color    string `json:"color"`
	FontSize string `json:"fontSize"`
}

// MarkerOptions configures a new marker.
type MarkerOptions struct {
	Position geo.Point
	Title    string
	Icon     *Icon
	Label    *Label
	OnClick  func()
}

// Options configures a new map.
type Options struct {
	Center geo.Point
	Zoom   int
}

// Marker is a handle to a single marker attached to a map.
type Marker interface {
	ID() string
	Position() geo.Point
	// Remove detaches the marker from its map and drops its listeners.
	Remove()
}

// ClusterRenderer builds the marker drawn for a cluster of count markers.
type ClusterRenderer func(count int, position geo.Point) MarkerOptions

// Clusterer groups markers of one map into cluster icons.
type Clusterer interface {
	// Replace makes markers the complete displayed set.
	Replace(markers []Marker)
	// Clear empties the displayed set.
	Clear()
	// Close detaches the clusterer from its map.
	Close()
	Len() int
}

// Map is a live map instance.
type Map interface {
	NewMarker(opts MarkerOptions) Marker
	NewClusterer(render ClusterRenderer) Clusterer
}

// Loader asynchronously loads the SDK and binds a map to a container.
type Loader interface {
	Load(ctx context.Context, opts Options) (Map, error)
}
