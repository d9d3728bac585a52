package traffic

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

// cameraNamespace seeds the name-based IDs derived for camera records; the open
// data feed carries no identifier of its own.
var cameraNamespace = uuid.MustParse("5c0b8f4e-27a1-4f0e-9d0a-3f6d2b8c1e71")

// CameraRecord is a single traffic camera as published by the open data API.
type CameraRecord struct {
	ID          string    `json:"id"`
	Location    geo.Point `json:"location"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl"`
	Place       string    `json:"place"`
	Quadrant    string    `json:"quadrant"`
}

// apiCamera mirrors one element of the remote JSON array.
type apiCamera struct {
	Point     *geojson.Geometry `json:"point"`
	CameraURL struct {
		URL         string `json:"url"`
		Description string `json:"description"`
	} `json:"camera_url"`
	CameraLocation string `json:"camera_location"`
	Quadrant       string `json:"quadrant"`
}

func (a apiCamera) toRecord() (CameraRecord, error) {
	if a.Point == nil {
		return CameraRecord{}, fmt.Errorf("camera %q has no point", a.CameraLocation)
	}
	pt, ok := a.Point.Geometry().(orb.Point)
	if !ok {
		return CameraRecord{}, fmt.Errorf("camera %q point is a %s", a.CameraLocation, a.Point.Type)
	}
	return CameraRecord{
		ID:          uuid.NewSHA1(cameraNamespace, []byte(a.CameraURL.URL)).String(),
		Location:    geo.FromOrb(pt),
		Description: a.CameraURL.Description,
		ImageURL:    a.CameraURL.URL,
		Place:       a.CameraLocation,
		Quadrant:    a.Quadrant,
	}, nil
}

// DecodeCameras parses the API response body into records.
func DecodeCameras(body []byte) ([]CameraRecord, error) {
	var raw []apiCamera
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode cameras: %w", err)
	}

	records := make([]CameraRecord, 0, len(raw))
	for _, a := range raw {
		r, err := a.toRecord()
		if err != nil {
			return nil, fmt.Errorf("decode cameras: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}
