package converter_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/converter"
	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/loader"
)

// newConverter returns a converter logging into buf.
func newConverter(t *testing.T, l loader.ObjectLoader) (*converter.Converter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return converter.New(loader.NewResolver(l, log), config.Default(), log), &buf
}

func convert(t *testing.T, c *converter.Converter, n *graph.Node) *geometry.GeometryData {
	t.Helper()
	gd, err := c.Convert(context.Background(), n)
	require.NoError(t, err)
	return gd
}

func squareMesh() graph.Object {
	return graph.Object{
		"id":           "square",
		"speckle_type": "Objects.Geometry.Mesh",
		"units":        "mm",
		"vertices":     []float64{0, 0, 0, 1000, 0, 0, 1000, 1000, 0, 0, 1000, 0},
		"faces":        []float64{1, 0, 1, 2, 3},
	}
}

func TestMeshAliasesNonInstanced(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := squareMesh()
	n := graph.NewNode(raw, false)

	gd := convert(t, c, n)
	require.NotNil(t, gd)
	assert.Len(t, gd.Attributes.Index, 6)
	assert.True(t, gd.Aliased())
	assert.Same(t, &raw["vertices"].([]float64)[0], &gd.Attributes.Position[0])
	assert.ErrorIs(t, c.Dispose(n), graph.ErrNodeInUse)

	gd.Bake()
	assert.InDelta(t, 1.0, gd.Attributes.Position[3], 1e-12, "millimeters bake to meters")
	assert.Equal(t, 1000.0, raw["vertices"].([]float64)[3], "raw is not mutated by baking")
	require.NoError(t, c.Dispose(n))
	assert.False(t, raw.Has("vertices"))
}

func TestMeshCopiesInstanced(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := squareMesh()
	n := graph.NewNode(raw, true)

	a := convert(t, c, n)
	b := convert(t, c, n)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.False(t, a.Aliased())
	assert.NotSame(t, &raw["vertices"].([]float64)[0], &a.Attributes.Position[0])
	assert.NotSame(t, &a.Attributes.Position[0], &b.Attributes.Position[0])

	assert.ErrorIs(t, c.Dispose(n), graph.ErrNotSealed)
	n.Seal()
	require.NoError(t, c.Dispose(n))
	assert.Equal(t, 1000.0, a.Attributes.Position[3], "copies survive disposal")
}

func TestMeshIndicesInRange(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Mesh",
		"vertices": []float64{
			0, 0, 0, 2, 0, 0, 2, 1, 0, 1, 1, 0, 1, 2, 0, 0, 2, 0, 5, 5, 5,
		},
		"faces": []float64{6, 0, 1, 2, 3, 4, 5, 0, 0, 1, 6},
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Len(t, gd.Attributes.Index, (4+1)*3)
	for _, idx := range gd.Attributes.Index {
		assert.Less(t, int(idx), gd.VertexCount())
	}
}

func TestMeshMissingFieldsIsBenign(t *testing.T) {
	c, logs := newConverter(t, nil)
	gd := convert(t, c, graph.NewNode(graph.Object{"speckle_type": "Objects.Geometry.Mesh"}, false))
	assert.Nil(t, gd)
	assert.Empty(t, logs.String())
}

func TestMeshColors(t *testing.T) {
	c, logs := newConverter(t, nil)
	raw := squareMesh()
	raw["colors"] = []float64{-65536, -65536, -65536, -65536}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	require.Len(t, gd.Attributes.Color, 12)
	assert.Equal(t, []float64{1, 0, 0}, gd.Attributes.Color[:3])
	assert.NotContains(t, logs.String(), "mismatched")

	raw = squareMesh()
	raw["colors"] = []float64{-65536, -65536}
	gd = convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Len(t, gd.Attributes.Color, 12, "colors are fitted to the vertex count")
	assert.Contains(t, logs.String(), "mismatched")
}

func TestMalformedFacesLoggedNotReturned(t *testing.T) {
	c, logs := newConverter(t, nil)
	raw := squareMesh()
	raw["faces"] = []float64{0, 0, 1, 99}
	gd, err := c.Convert(context.Background(), graph.NewNode(raw, false))
	assert.NoError(t, err)
	assert.Nil(t, gd)
	assert.Contains(t, logs.String(), "conversion failed")
	assert.Contains(t, logs.String(), "id=square")
}

func TestInvalidFaceStreamsFail(t *testing.T) {
	for name, faces := range map[string][]float64{
		"negative marker": {-4, 0, 1, 2},
		"fractional":      {0, 0, 1.5, 2},
		"nan":             {0, 0, math.NaN(), 2},
	} {
		t.Run(name, func(t *testing.T) {
			c, logs := newConverter(t, nil)
			raw := squareMesh()
			raw["faces"] = faces
			gd, err := c.Convert(context.Background(), graph.NewNode(raw, false))
			assert.NoError(t, err)
			assert.Nil(t, gd)
			assert.Contains(t, logs.String(), "conversion failed")
			assert.NotContains(t, logs.String(), "panicked")
		})
	}
}

func TestChunkedMeshFetchFailure(t *testing.T) {
	l := loader.NewMemoryLoader(graph.Object{"id": "c1", "data": []float64{0, 0, 0}})
	c, _ := newConverter(t, l)
	raw := squareMesh()
	raw["vertices"] = []any{graph.Object{"referencedId": "c1"}, graph.Object{"referencedId": "gone"}}

	_, err := c.Convert(context.Background(), graph.NewNode(raw, false))
	var fe *converter.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.ErrorIs(t, err, loader.ErrNotFound)
}

func TestChunkedMeshIsOwned(t *testing.T) {
	l := loader.NewMemoryLoader(
		graph.Object{"id": "c1", "data": []float64{0, 0, 0, 1, 0, 0}},
		graph.Object{"id": "c2", "data": []any{0.0, 1.0, 0.0}},
	)
	c, _ := newConverter(t, l)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Mesh",
		"vertices":     []any{graph.Object{"referencedId": "c1"}, graph.Object{"referencedId": "c2"}},
		"faces":        []float64{0, 0, 1, 2},
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Equal(t, 3, gd.VertexCount())
	assert.False(t, gd.Aliased())
}

func TestPointcloud(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Pointcloud",
		"points":       []float64{0, 0, 0, 1, 1, 1},
		"colors":       []float64{0xffffff, 0},
		"units":        "cm",
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Nil(t, gd.Attributes.Index)
	assert.Equal(t, []float64{1, 1, 1, 0, 0, 0}, gd.Attributes.Color)
	assert.Equal(t, mgl64.Scale3D(0.01, 0.01, 0.01), *gd.BakeTransform)
}

func TestUnknownAndContainersReturnNil(t *testing.T) {
	c, _ := newConverter(t, nil)
	for _, st := range []string{
		"Objects.BuiltElements.Wall",
		"Objects.Geometry.Brep",
		"Objects.Other.BlockInstance",
		"Objects.Other.Revit.RevitInstance",
		"",
	} {
		gd := convert(t, c, graph.NewNode(graph.Object{"speckle_type": st}, false))
		assert.Nil(t, gd, st)
	}
	assert.Nil(t, convert(t, c, nil))
}

func TestCanceledContext(t *testing.T) {
	c, _ := newConverter(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Convert(ctx, graph.NewNode(squareMesh(), false))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeckleType(t *testing.T) {
	c, _ := newConverter(t, nil)
	n := graph.NewNode(graph.Object{"speckle_type": "Base:Objects.Geometry.Mesh"}, false)
	assert.Equal(t, graph.Mesh, c.SpeckleType(n))
}
