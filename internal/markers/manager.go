package markers

import (
	"errors"
	"math"
	"strconv"

	"github.com/i474232898/weather-dashboard/internal/geo"
	"github.com/i474232898/weather-dashboard/internal/mapsdk"
	"github.com/i474232898/weather-dashboard/internal/traffic"
)

// ErrNotAttached is returned by Sync before Attach.
var ErrNotAttached = errors.New("marker manager is not attached to a map")

const (
	markerColor = "#EA4335"
	pinPath     = "M12 2C15.9 2 19 5.1 19 9C19 14.2 12 22 12 22C12 22 5 14.2 5 9C5 5.1 8.1 2 12 2Z"
	circlePath  = "circle"
)

// View is a read-only description of a tracked marker.
type View struct {
	MarkerID string    `json:"markerId"`
	CameraID string    `json:"cameraId"`
	Position geo.Point `json:"position"`
}

type tracked struct {
	handle mapsdk.Marker
	record traffic.CameraRecord
}

// Manager owns every marker and the clusterer it puts on a map. Each Sync
// replaces the previous marker set; nothing is appended.
//
// Manager is not safe for concurrent use; callers serialize access.
type Manager struct {
	m         mapsdk.Map
	clusterer mapsdk.Clusterer
	tracked   []tracked
}

// New returns a detached Manager.
func New() *Manager {
	return &Manager{}
}

// Attach binds the manager to m and creates an empty clusterer on it.
func (mgr *Manager) Attach(m mapsdk.Map) {
	if mgr.m != nil {
		mgr.Detach()
	}
	mgr.m = m
	mgr.clusterer = m.NewClusterer(ClusterIcon)
}

// Attached reports whether a map is bound.
func (mgr *Manager) Attached() bool {
	return mgr.m != nil
}

// Sync removes every tracked marker and creates one fresh marker per record,
// handing the new set to the clusterer as a full replacement.
func (mgr *Manager) Sync(records []traffic.CameraRecord, onSelect func(traffic.CameraRecord)) error {
	if mgr.m == nil {
		return ErrNotAttached
	}

	mgr.removeAll()

	next := make([]tracked, 0, len(records))
	handles := make([]mapsdk.Marker, 0, len(records))
	for _, r := range records {
		r := r
		h := mgr.m.NewMarker(mapsdk.MarkerOptions{
			Position: r.Location,
			Title:    r.Place,
			Icon:     pinIcon(),
			OnClick: func() {
				if onSelect != nil {
					onSelect(r)
				}
			},
		})
		next = append(next, tracked{handle: h, record: r})
		handles = append(handles, h)
	}

	mgr.tracked = next
	mgr.clusterer.Replace(handles)
	return nil
}

// Detach removes every marker, discards the clusterer and forgets the map.
// It is a no-op when nothing is attached.
func (mgr *Manager) Detach() {
	mgr.removeAll()
	if mgr.clusterer != nil {
		mgr.clusterer.Clear()
		mgr.clusterer.Close()
		mgr.clusterer = nil
	}
	mgr.m = nil
}

func (mgr *Manager) removeAll() {
	for _, t := range mgr.tracked {
		t.handle.Remove()
	}
	mgr.tracked = nil
}

// Len returns the number of tracked markers.
func (mgr *Manager) Len() int {
	return len(mgr.tracked)
}

// HasClusterer reports whether a clusterer is currently held.
func (mgr *Manager) HasClusterer() bool {
	return mgr.clusterer != nil
}

// Views lists the tracked markers.
func (mgr *Manager) Views() []View {
	out := make([]View, 0, len(mgr.tracked))
	for _, t := range mgr.tracked {
		out = append(out, View{
			MarkerID: t.handle.ID(),
			CameraID: t.record.ID,
			Position: t.handle.Position(),
		})
	}
	return out
}

// ClusterScale grows with log2 of the member count so large clusters stay
// visually compact.
func ClusterScale(count int) float64 {
	if count < 1 {
		count = 1
	}
	return 10 + math.Log2(float64(count))*2
}

// ClusterIcon renders a cluster as a labelled circle.
func ClusterIcon(count int, position geo.Point) mapsdk.MarkerOptions {
	return mapsdk.MarkerOptions{
		Position: position,
		Label: &mapsdk.Label{
			Text:     strconv.Itoa(count),
			Color:    "white",
			FontSize: "12px",
		},
		Icon: &mapsdk.Icon{
			Path:         circlePath,
			FillColor:    markerColor,
			FillOpacity:  0.9,
			StrokeColor:  "#ffffff",
			StrokeWeight: 2,
			Scale:        ClusterScale(count),
		},
	}
}

func pinIcon() *mapsdk.Icon {
	return &mapsdk.Icon{
		Path:         pinPath,
		FillColor:    markerColor,
		FillOpacity:  1,
		StrokeColor:  "#ffffff",
		StrokeWeight: 1,
		Scale:        1.5,
	}
}
