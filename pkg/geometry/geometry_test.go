package geometry_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
)

func TestBakeOnceIntoFreshBuffer(t *testing.T) {
	raw := []float64{1, 2, 3, 4, 5, 6}
	node := graph.NewNode(graph.Object{"vertices": raw}, false)
	lease, err := node.Acquire()
	require.NoError(t, err)

	g := geometry.NewAliased(raw, lease)
	g.BakeTransform = geometry.Mat(mgl64.Scale3D(2, 2, 2))
	assert.True(t, g.Aliased())
	assert.False(t, g.Baked())

	g.Bake()
	g.Bake()
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, g.Attributes.Position)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, raw, "source buffer must not be written")
	assert.False(t, g.Aliased())
	assert.True(t, g.Baked())
	assert.Zero(t, node.Leases())
	require.NoError(t, node.Dispose())
}

func TestBakeWithoutTransformKeepsAlias(t *testing.T) {
	raw := []float64{1, 2, 3}
	node := graph.NewNode(graph.Object{}, false)
	lease, err := node.Acquire()
	require.NoError(t, err)

	g := geometry.NewAliased(raw, lease)
	g.Bake()
	assert.True(t, g.Aliased())
	assert.ErrorIs(t, node.Dispose(), graph.ErrNodeInUse)

	g.Release()
	assert.NoError(t, node.Dispose())
}

func TestTransformPositions(t *testing.T) {
	m := mgl64.Translate3D(1, 0, 0).Mul4(mgl64.Scale3D(2, 2, 2))
	out := geometry.TransformPositions(m, []float64{1, 1, 1})
	assert.InDeltaSlice(t, []float64{3, 2, 2}, out, 1e-12)
}

func TestMergeOffsetsIndices(t *testing.T) {
	a := geometry.New([]float64{0, 0, 0, 1, 0, 0, 0, 1, 0})
	a.Attributes.Index = []uint32{0, 1, 2}
	a.Attributes.Color = []float64{1, 0, 0, 1, 0, 0, 1, 0, 0}

	b := geometry.New([]float64{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0})
	b.Attributes.Index = []uint32{0, 1, 2, 0, 2, 3}
	b.BakeTransform = geometry.Mat(mgl64.Translate3D(0, 0, 5))

	m := geometry.Merge([]*geometry.GeometryData{a, b})
	assert.Equal(t, 7, m.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 3, 5, 6}, m.Attributes.Index)
	assert.Nil(t, m.Attributes.Color, "color only merges when present on all inputs")
	assert.Equal(t, 5.0, m.Attributes.Position[3*3+2], "inputs are baked before merging")
	for _, idx := range m.Attributes.Index {
		assert.Less(t, int(idx), m.VertexCount())
	}
}

func TestMergePolylines(t *testing.T) {
	a := geometry.New([]float64{0, 0, 0, 1, 0, 0})
	b := geometry.New([]float64{1, 0, 0, 1, 1, 0})
	a.Attributes.Color = []float64{1, 1, 1, 1, 1, 1}
	b.Attributes.Color = []float64{0, 0, 0, 0, 0, 0}

	m := geometry.Merge([]*geometry.GeometryData{a, b})
	assert.Nil(t, m.Attributes.Index)
	assert.Len(t, m.Attributes.Position, 12)
	assert.Len(t, m.Attributes.Color, 12)
}

func TestMergeEmpty(t *testing.T) {
	m := geometry.Merge(nil)
	assert.True(t, m.IsEmpty())
	assert.Nil(t, m.Attributes.Index)
}
