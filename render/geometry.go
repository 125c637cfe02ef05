// Package render draws stage entities from transition frames. Drawing is a
// function of the frame, the placement and the time; the only state carried
// between frames is the geometry cache and the background image cache.
package render

import (
	"container/list"
	"math"
	"strings"
	"sync"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/stagesync/common"
	"github.com/milk9111/stagesync/phase"
)

// OutlineSegments is the number of points every outline is sampled with.
// All shapes share the same angular sampling so outlines can be morphed
// point by point.
const OutlineSegments = 64

// Outline samples the boundary of shape, centred on the origin, at
// OutlineSegments evenly spaced angles.
func Outline(shape phase.Shape, width, height float64) []cp.Vector {
	hw, hh := width/2, height/2
	pts := make([]cp.Vector, OutlineSegments)
	for i := range pts {
		dir := cp.ForAngle(2 * math.Pi * float64(i) / OutlineSegments)
		pts[i] = dir.Mult(radius(shape, dir, hw, hh))
	}
	return pts
}

func radius(shape phase.Shape, dir cp.Vector, hw, hh float64) float64 {
	c, s := math.Abs(dir.X), math.Abs(dir.Y)
	switch shape {
	case phase.ShapeEllipse:
		if hw == 0 || hh == 0 {
			return 0
		}
		return 1 / math.Sqrt((c*c)/(hw*hw)+(s*s)/(hh*hh))
	case phase.ShapeDiamond:
		if hw == 0 || hh == 0 {
			return 0
		}
		return 1 / (c/hw + s/hh)
	default:
		r := math.Inf(1)
		if c > 1e-9 {
			r = hw / c
		}
		if s > 1e-9 {
			r = math.Min(r, hh/s)
		}
		if math.IsInf(r, 1) {
			return 0
		}
		return r
	}
}

// MorphOutline interpolates two outlines sampled with Outline.
func MorphOutline(a, b []cp.Vector, t float64) []cp.Vector {
	if len(a) != len(b) {
		if t < 0.5 {
			return a
		}
		return b
	}
	out := make([]cp.Vector, len(a))
	for i := range a {
		out[i] = cp.Vector{X: common.Lerp(a[i].X, b[i].X, t), Y: common.Lerp(a[i].Y, b[i].Y, t)}
	}
	return out
}

type geometryEntry struct {
	key string
	pts []cp.Vector
}

// GeometryCache is a bounded LRU of phase outlines keyed by
// phase.GeometryKey, so a superseding phase with new geometry misses and the
// stale entry ages out. It is shared between the frame loop and
// sub-transitions warming it, so it locks.
type GeometryCache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	items map[string]*list.Element

	hits, misses int
}

func NewGeometryCache(limit int) *GeometryCache {
	if limit <= 0 {
		limit = 64
	}
	return &GeometryCache{
		limit: limit,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Outline returns the cached outline of p's appearance, building it on a
// miss. The returned slice is shared and must not be modified.
func (c *GeometryCache) Outline(p *phase.Phase) []cp.Vector {
	key := p.GeometryKey()
	if key == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		return el.Value.(*geometryEntry).pts
	}
	c.misses++
	a := p.Appearance
	pts := Outline(a.Shape, a.Width, a.Height)
	c.items[key] = c.order.PushFront(&geometryEntry{key: key, pts: pts})
	for c.order.Len() > c.limit {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*geometryEntry).key)
	}
	return pts
}

// InvalidateEntity drops every outline cached for the entity's phases.
func (c *GeometryCache) InvalidateEntity(entityID string) {
	prefix := entityID + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}

// Invalidate drops every cached outline.
func (c *GeometryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

func (c *GeometryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts since creation.
func (c *GeometryCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
