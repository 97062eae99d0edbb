// Package catalog resolves dataset identifiers to dated single-band scenes.
package catalog

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/period"
	"github.com/sells-group/envprep/internal/raster"
)

// ErrUnknownCollection is returned when a collection id is not in the catalog.
var ErrUnknownCollection = eris.New("catalog: unknown collection")

// Scene is one acquisition of one band.
type Scene struct {
	Collection string
	Band       string
	Date       time.Time
	Raster     *raster.Raster
}

// Query selects scenes of one collection band within an inclusive date range.
// A zero or empty Bound disables the spatial filter.
type Query struct {
	Collection string
	Band       string
	Dates      period.DateRange
	Bound      orb.Bound
}

// SceneRef identifies one scene without its pixels.
type SceneRef struct {
	Collection string
	Band       string
	Date       time.Time

	index int
}

// Catalog finds scenes and decodes them one at a time. Find returns refs
// ordered by date; zero matching scenes is not an error.
type Catalog interface {
	Find(ctx context.Context, q Query) ([]SceneRef, error)
	Open(ctx context.Context, ref SceneRef) (*raster.Raster, error)
	Collections() []string
}

// Require returns ErrUnknownCollection for the first id cat does not know.
func Require(cat Catalog, ids ...string) error {
	known := cat.Collections()
	for _, id := range ids {
		if !slices.Contains(known, id) {
			return unknown(id)
		}
	}
	return nil
}

func unknown(id string) error {
	return eris.Wrapf(ErrUnknownCollection, "%q", id)
}

func badRef(ref SceneRef) error {
	return eris.Errorf("catalog: no %s scene %d", ref.Collection, ref.index)
}

func (q Query) spatial() bool {
	return q.Bound != (orb.Bound{}) && !q.Bound.IsEmpty()
}

func (q Query) matches(band string, date time.Time, b orb.Bound) bool {
	if band != q.Band || !q.Dates.Contains(date) {
		return false
	}
	return !q.spatial() || b.Intersects(q.Bound)
}

func sortRefs(s []SceneRef) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}

// Memory is an in-process catalog.
type Memory struct {
	mu     sync.RWMutex
	scenes map[string][]Scene
}

// NewMemory returns a catalog that knows the given collection ids.
func NewMemory(collections ...string) *Memory {
	m := &Memory{scenes: make(map[string][]Scene)}
	for _, c := range collections {
		m.scenes[c] = nil
	}
	return m
}

// Add registers a scene, creating its collection if needed.
func (m *Memory) Add(s Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[s.Collection] = append(m.scenes[s.Collection], s)
}

// Collections lists the known collection ids in sorted order.
func (m *Memory) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.scenes))
	for id := range m.scenes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Find returns refs to the matching scenes ordered by date.
func (m *Memory) Find(ctx context.Context, q Query) ([]SceneRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all, ok := m.scenes[q.Collection]
	if !ok {
		return nil, unknown(q.Collection)
	}
	var out []SceneRef
	for i, s := range all {
		if q.matches(s.Band, s.Date, s.Raster.Grid.Bound()) {
			out = append(out, SceneRef{Collection: s.Collection, Band: s.Band, Date: s.Date, index: i})
		}
	}
	sortRefs(out)
	return out, nil
}

// Open returns the raster of a scene found by Find. The raster is shared and
// must not be modified.
func (m *Memory) Open(ctx context.Context, ref SceneRef) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all, ok := m.scenes[ref.Collection]
	if !ok {
		return nil, unknown(ref.Collection)
	}
	if ref.index < 0 || ref.index >= len(all) {
		return nil, badRef(ref)
	}
	return all[ref.index].Raster, nil
}
