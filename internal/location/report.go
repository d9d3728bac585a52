package location

import (
	"context"
	"fmt"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// Report is a device position as reported by the browser: either coordinates
// or the geolocation error code (PERMISSION_DENIED, POSITION_UNAVAILABLE,
// TIMEOUT, UNSUPPORTED).
type Report struct {
	Lat   *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon   *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	Error string   `json:"error,omitempty" validate:"omitempty,oneof=PERMISSION_DENIED POSITION_UNAVAILABLE TIMEOUT UNSUPPORTED"`
}

// CurrentPosition implements Positioner.
func (r Report) CurrentPosition(context.Context) (geo.Point, error) {
	if r.Error != "" {
		return geo.Point{}, fmt.Errorf("%w: %s", ErrGeolocationUnavailable, r.Error)
	}
	if r.Lat == nil || r.Lon == nil {
		return geo.Point{}, fmt.Errorf("%w: no coordinates reported", ErrGeolocationUnavailable)
	}
	return geo.New(*r.Lat, *r.Lon), nil
}
