package mapsdk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/i474232898/weather-dashboard/internal/geo"
)

const (
	// MinClusterSize is the smallest group drawn as a cluster icon.
	MinClusterSize = 2
	// gridZoomOffset sizes the clustering grid at a quarter tile (64px).
	gridZoomOffset = 2
)

// SceneLoader loads in-process scenes. It fails without an API key, mirroring
// the hosted SDK refusing to initialise.
type SceneLoader struct {
	APIKey string
}

// Load returns a new Scene bound to opts.
func (l SceneLoader) Load(ctx context.Context, opts Options) (Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.APIKey == "" {
		return nil, fmt.Errorf("%w: no api key configured", ErrMapLoad)
	}
	return NewScene(opts), nil
}

// Scene is an in-process Map. It tracks live markers and clusterers and renders
// them into a Frame.
type Scene struct {
	mu         sync.Mutex
	opts       Options
	seq        uint64
	markers    map[string]*sceneMarker
	clusterers []*sceneClusterer
}

// NewScene creates an empty scene.
func NewScene(opts Options) *Scene {
	return &Scene{
		opts:    opts,
		markers: make(map[string]*sceneMarker),
	}
}

type sceneMarker struct {
	scene *Scene
	id    string
	seq   uint64
	opts  MarkerOptions
}

func (m *sceneMarker) ID() string          { return m.id }
func (m *sceneMarker) Position() geo.Point { return m.opts.Position }

func (m *sceneMarker) Remove() {
	m.scene.mu.Lock()
	defer m.scene.mu.Unlock()
	delete(m.scene.markers, m.id)
}

// NewMarker attaches a marker to the scene.
func (s *Scene) NewMarker(opts MarkerOptions) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	m := &sceneMarker{scene: s, id: uuid.NewString(), seq: s.seq, opts: opts}
	s.markers[m.id] = m
	return m
}

type sceneClusterer struct {
	scene   *Scene
	render  ClusterRenderer
	members []Marker
}

func (c *sceneClusterer) Replace(markers []Marker) {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	c.members = append([]Marker(nil), markers...)
}

func (c *sceneClusterer) Clear() {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	c.members = nil
}

func (c *sceneClusterer) Close() {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	c.members = nil
	for i, other := range c.scene.clusterers {
		if other == c {
			c.scene.clusterers = append(c.scene.clusterers[:i], c.scene.clusterers[i+1:]...)
			break
		}
	}
}

func (c *sceneClusterer) Len() int {
	c.scene.mu.Lock()
	defer c.scene.mu.Unlock()
	return len(c.members)
}

// NewClusterer attaches an empty clusterer to the scene.
func (s *Scene) NewClusterer(render ClusterRenderer) Clusterer {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &sceneClusterer{scene: s, render: render}
	s.clusterers = append(s.clusterers, c)
	return c
}

// LiveMarkers returns the number of markers currently attached.
func (s *Scene) LiveMarkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// Clusterers returns the number of clusterers attached.
func (s *Scene) Clusterers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusterers)
}

// ClusteredMarkers returns the number of live markers held by any clusterer.
func (s *Scene) ClusteredMarkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.clusterers {
		for _, m := range c.members {
			if _, ok := s.markers[m.ID()]; ok {
				n++
			}
		}
	}
	return n
}

// Click dispatches a click to the marker's handler.
func (s *Scene) Click(markerID string) error {
	s.mu.Lock()
	m, ok := s.markers[markerID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarker, markerID)
	}

	// The handler may call back into the scene.
	if m.opts.OnClick != nil {
		m.opts.OnClick()
	}
	return nil
}

// RenderedMarker is a single marker as drawn.
type RenderedMarker struct {
	ID       string    `json:"id"`
	Position geo.Point `json:"position"`
	Title    string    `json:"title,omitempty"`
	Icon     *Icon     `json:"icon,omitempty"`
	Label    *Label    `json:"label,omitempty"`
}

// RenderedCluster is a group of markers drawn as one icon.
type RenderedCluster struct {
	Count     int       `json:"count"`
	Position  geo.Point `json:"position"`
	Icon      *Icon     `json:"icon,omitempty"`
	Label     *Label    `json:"label,omitempty"`
	MarkerIDs []string  `json:"markerIds"`
}

// Frame is a snapshot of everything drawn on the scene.
type Frame struct {
	Center   geo.Point         `json:"center"`
	Zoom     int               `json:"zoom"`
	Markers  []RenderedMarker  `json:"markers"`
	Clusters []RenderedCluster `json:"clusters"`
}

// Render groups clustered markers on a tile grid at the scene zoom and returns
// the resulting frame.
func (s *Scene) Render() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := Frame{
		Center:   s.opts.Center,
		Zoom:     s.opts.Zoom,
		Markers:  []RenderedMarker{},
		Clusters: []RenderedCluster{},
	}

	clustered := make(map[string]bool)
	gridZoom := maptile.Zoom(s.opts.Zoom + gridZoomOffset)

	for _, c := range s.clusterers {
		cells := make(map[maptile.Tile][]*sceneMarker)
		for _, h := range c.members {
			m, ok := s.markers[h.ID()]
			if !ok || clustered[m.id] {
				continue
			}
			clustered[m.id] = true
			tile := maptile.At(m.opts.Position.Orb(), gridZoom)
			cells[tile] = append(cells[tile], m)
		}

		tiles := make([]maptile.Tile, 0, len(cells))
		for t := range cells {
			tiles = append(tiles, t)
		}
		sort.Slice(tiles, func(i, j int) bool {
			if tiles[i].Y != tiles[j].Y {
				return tiles[i].Y < tiles[j].Y
			}
			return tiles[i].X < tiles[j].X
		})

		for _, t := range tiles {
			members := cells[t]
			if len(members) < MinClusterSize || c.render == nil {
				for _, m := range members {
					frame.Markers = append(frame.Markers, m.rendered())
				}
				continue
			}
			frame.Clusters = append(frame.Clusters, clusterOf(members, c.render))
		}
	}

	loose := make([]*sceneMarker, 0, len(s.markers))
	for _, m := range s.markers {
		if !clustered[m.id] {
			loose = append(loose, m)
		}
	}
	sort.Slice(loose, func(i, j int) bool { return loose[i].seq < loose[j].seq })
	for _, m := range loose {
		frame.Markers = append(frame.Markers, m.rendered())
	}

	return frame
}

func (m *sceneMarker) rendered() RenderedMarker {
	return RenderedMarker{
		ID:       m.id,
		Position: m.opts.Position,
		Title:    m.opts.Title,
		Icon:     m.opts.Icon,
		Label:    m.opts.Label,
	}
}

func clusterOf(members []*sceneMarker, render ClusterRenderer) RenderedCluster {
	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

	pts := make(orb.MultiPoint, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		pts = append(pts, m.opts.Position.Orb())
		ids = append(ids, m.id)
	}
	center := geo.FromOrb(pts.Bound().Center())
	opts := render(len(members), center)

	return RenderedCluster{
		Count:     len(members),
		Position:  center,
		Icon:      opts.Icon,
		Label:     opts.Label,
		MarkerIDs: ids,
	}
}
