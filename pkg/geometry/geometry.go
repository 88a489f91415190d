// Package geometry defines GeometryData, the renderer-agnostic buffers the
// converter produces, and the operations consumers run on it.
package geometry

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/graph"
)

// Attributes holds flat per-vertex buffers.
type Attributes struct {
	// Position is xyz triples.
	Position []float64
	// Index is a triangle list; nil means Position is an ordered
	// polyline, edge or point list.
	Index []uint32
	// Color is linear RGB, one triple per vertex.
	Color []float64
}

// GeometryData is the output of one node conversion.
//
// When Aliased is true, Position shares storage with the source node's raw
// record and a lease on that node is held until Bake or Release.
type GeometryData struct {
	Attributes Attributes
	// BakeTransform is folded into Position by Bake, exactly once.
	BakeTransform *mgl64.Mat4
	// Transform is a placement the consumer applies per instance.
	Transform *mgl64.Mat4
	// MetaData passes the raw record through for kinds without vertices.
	MetaData graph.Object

	mu    sync.Mutex
	baked bool
	lease *graph.Lease
}

// New returns geometry owning its position buffer.
func New(position []float64) *GeometryData {
	return &GeometryData{Attributes: Attributes{Position: position}}
}

// NewAliased returns geometry whose position buffer aliases raw storage of
// the node behind lease.
func NewAliased(position []float64, lease *graph.Lease) *GeometryData {
	return &GeometryData{Attributes: Attributes{Position: position}, lease: lease}
}

// VertexCount returns the number of xyz triples.
func (g *GeometryData) VertexCount() int {
	return len(g.Attributes.Position) / 3
}

// TriangleCount returns the number of indexed triangles.
func (g *GeometryData) TriangleCount() int {
	return len(g.Attributes.Index) / 3
}

// IsEmpty reports whether the geometry has no vertices.
func (g *GeometryData) IsEmpty() bool {
	return len(g.Attributes.Position) == 0
}

// Aliased reports whether Position still shares storage with a node.
func (g *GeometryData) Aliased() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lease != nil
}

// Baked reports whether BakeTransform has been folded into Position.
func (g *GeometryData) Baked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.baked || g.BakeTransform == nil
}

// Release drops the lease on the source node. Consumers call it once the
// buffers have been uploaded or copied.
func (g *GeometryData) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lease.Release()
	g.lease = nil
}

// Bake folds BakeTransform into a freshly allocated position buffer. It
// runs at most once; later calls do nothing. The source node's buffer is
// never written, and the alias lease is released once the copy exists.
func (g *GeometryData) Bake() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.baked || g.BakeTransform == nil {
		return
	}
	g.Attributes.Position = TransformPositions(*g.BakeTransform, g.Attributes.Position)
	g.baked = true
	g.lease.Release()
	g.lease = nil
}

// TransformPositions returns m applied to every xyz triple, in a new slice.
func TransformPositions(m mgl64.Mat4, pos []float64) []float64 {
	out := make([]float64, len(pos))
	for i := 0; i+2 < len(pos); i += 3 {
		p := mgl64.TransformCoordinate(mgl64.Vec3{pos[i], pos[i+1], pos[i+2]}, m)
		out[i], out[i+1], out[i+2] = p[0], p[1], p[2]
	}
	return out
}

// Mat returns a pointer to a copy of m, for the optional transform fields.
func Mat(m mgl64.Mat4) *mgl64.Mat4 {
	return &m
}
