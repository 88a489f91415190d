package converter_test

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/converter"
	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
)

func pt(x, y, z float64) graph.Object {
	return graph.Object{"x": x, "y": y, "z": z}
}

func xyPlane(ox, oy, oz float64) graph.Object {
	return graph.Object{
		"origin": pt(ox, oy, oz),
		"normal": pt(0, 0, 1),
		"xdir":   pt(1, 0, 0),
		"ydir":   pt(0, 1, 0),
	}
}

func vertexAt(gd *geometry.GeometryData, i int) mgl64.Vec3 {
	p := gd.Attributes.Position
	return mgl64.Vec3{p[i*3], p[i*3+1], p[i*3+2]}
}

func assertVec(t *testing.T, want, got mgl64.Vec3, msg string) {
	t.Helper()
	assert.InDelta(t, want[0], got[0], 1e-9, msg)
	assert.InDelta(t, want[1], got[1], 1e-9, msg)
	assert.InDelta(t, want[2], got[2], 1e-9, msg)
}

func TestPointEncodings(t *testing.T) {
	c, _ := newConverter(t, nil)
	modern := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Point", "x": 1.0, "y": 2.0, "z": 3.0,
	}, false))
	legacy := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Point", "value": []float64{1, 2, 3},
	}, false))
	require.NotNil(t, modern)
	require.NotNil(t, legacy)
	assert.Equal(t, modern.Attributes.Position, legacy.Attributes.Position)
}

func TestLine(t *testing.T) {
	c, _ := newConverter(t, nil)
	gd := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Line",
		"start":        pt(0, 0, 0),
		"end":          graph.Object{"value": []any{1.0, 2.0, 3.0}},
	}, false))
	require.NotNil(t, gd)
	assert.Equal(t, []float64{0, 0, 0, 1, 2, 3}, gd.Attributes.Position)
	assert.Nil(t, gd.Attributes.Index)

	legacy := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Line",
		"value":        []float64{0, 0, 0, 1, 2, 3},
	}, false))
	require.NotNil(t, legacy)
	assert.Equal(t, gd.Attributes.Position, legacy.Attributes.Position)
}

func TestPolylineClosed(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Polyline",
		"value":        []float64{0, 0, 0, 1, 0, 0, 1, 1, 0},
		"closed":       true,
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Equal(t, 4, gd.VertexCount())
	assertVec(t, vertexAt(gd, 0), vertexAt(gd, 3), "closing point")
	assert.False(t, gd.Aliased(), "closing allocates a new buffer")
	assert.Len(t, raw["value"], 9)

	points := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Polyline",
		"points":       []any{pt(0, 0, 0), graph.Object{"value": []float64{1, 0, 0}}},
	}, false))
	require.NotNil(t, points)
	assert.Equal(t, []float64{0, 0, 0, 1, 0, 0}, points.Attributes.Position)
}

func boxRecord(plane graph.Object) graph.Object {
	return graph.Object{
		"speckle_type": "Objects.Geometry.Box",
		"basePlane":    plane,
		"xSize":        graph.Object{"start": 0.0, "end": 2.0},
		"ySize":        graph.Object{"start": 0.0, "end": 3.0},
		"zSize":        graph.Object{"start": 0.0, "end": 4.0},
		"units":        "m",
	}
}

func TestBoxWireframe(t *testing.T) {
	c, logs := newConverter(t, nil)
	gd := convert(t, c, graph.NewNode(boxRecord(xyPlane(10, 0, 0)), false))
	require.NotNil(t, gd)
	assert.Equal(t, 24, gd.VertexCount())
	assert.Nil(t, gd.Attributes.Index)
	assert.NotContains(t, logs.String(), "not orthogonal")

	gd.Bake()
	var total float64
	for i := 0; i < 24; i += 2 {
		total += vertexAt(gd, i+1).Sub(vertexAt(gd, i)).Len()
	}
	assert.InDelta(t, 4*(2+3+4), total, 1e-9)
	for i := 0; i < 24; i++ {
		assert.GreaterOrEqual(t, vertexAt(gd, i)[0], 10.0-1e-9, "translated by the plane origin")
	}
}

func TestBoxNonOrthogonalFallsBack(t *testing.T) {
	c, logs := newConverter(t, nil)
	plane := xyPlane(0, 0, 0)
	plane["ydir"] = pt(1, 1, 0)
	gd := convert(t, c, graph.NewNode(boxRecord(plane), false))
	require.NotNil(t, gd)
	assert.Contains(t, logs.String(), "not orthogonal")
	assert.Equal(t, mgl64.Ident4(), *gd.BakeTransform)
}

func TestCircleResolutionFollowsSegmentLength(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Circle",
		"plane":        xyPlane(0, 0, 0),
		"radius":       1000.0,
		"units":        "mm",
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	// 2*pi*1m / 0.1m rounds up to 63 segments.
	assert.Equal(t, 64, gd.VertexCount())
	gd.Bake()
	for i := 0; i < gd.VertexCount(); i++ {
		assert.InDelta(t, 1.0, vertexAt(gd, i).Len(), 1e-9)
	}
	assertVec(t, vertexAt(gd, 0), vertexAt(gd, 63), "closed loop")
}

func TestEllipse(t *testing.T) {
	c, _ := newConverter(t, nil)
	gd := convert(t, c, graph.NewNode(graph.Object{
		"speckle_type": "Objects.Geometry.Ellipse",
		"plane":        xyPlane(0, 0, 0),
		"firstRadius":  2.0,
		"secondRadius": 1.0,
	}, false))
	require.NotNil(t, gd)
	n := gd.VertexCount()
	assert.Equal(t, int(math.Ceil(2*math.Pi*2*10))+1, n)
	assertVec(t, mgl64.Vec3{2, 0, 0}, vertexAt(gd, 0), "first radius on x")
}

func arcRecord(origin, start, mid, end graph.Object) graph.Object {
	plane := xyPlane(0, 0, 0)
	plane["origin"] = origin
	return graph.Object{
		"speckle_type": "Objects.Geometry.Arc",
		"plane":        plane,
		"startPoint":   start,
		"midPoint":     mid,
		"endPoint":     end,
		"units":        "m",
	}
}

func TestArcQuarter(t *testing.T) {
	c, _ := newConverter(t, nil)
	s := math.Sqrt2 / 2
	gd := convert(t, c, graph.NewNode(arcRecord(pt(1, 1, 0), pt(3, 1, 0), pt(1+2*s, 1+2*s, 0), pt(1, 3, 0)), false))
	require.NotNil(t, gd)
	require.Equal(t, 50, gd.VertexCount())
	gd.Bake()
	assertVec(t, mgl64.Vec3{3, 1, 0}, vertexAt(gd, 0), "start")
	assertVec(t, mgl64.Vec3{1, 3, 0}, vertexAt(gd, 49), "end")
	for i := 0; i < 50; i++ {
		assert.InDelta(t, 2.0, vertexAt(gd, i).Sub(mgl64.Vec3{1, 1, 0}).Len(), 1e-9)
	}
}

func TestArcMajorReversesWinding(t *testing.T) {
	c, _ := newConverter(t, nil)
	// Start on +x, end on +y, midpoint on the far side: a 270 degree arc.
	s := math.Sqrt2 / 2
	gd := convert(t, c, graph.NewNode(arcRecord(pt(0, 0, 0), pt(1, 0, 0), pt(-s, -s, 0), pt(0, 1, 0)), false))
	require.NotNil(t, gd)
	gd.Bake()
	assertVec(t, mgl64.Vec3{1, 0, 0}, vertexAt(gd, 0), "start")
	assertVec(t, mgl64.Vec3{0, 1, 0}, vertexAt(gd, 49), "end")

	var passesMid bool
	for i := 0; i < 50; i++ {
		v := vertexAt(gd, i)
		if v[0] < -0.6 && v[1] < -0.6 {
			passesMid = true
		}
	}
	assert.True(t, passesMid, "major arc should pass through the midpoint side")
}

func TestArcAntipodal(t *testing.T) {
	c, _ := newConverter(t, nil)
	gd := convert(t, c, graph.NewNode(arcRecord(pt(0, 0, 0), pt(1, 0, 0), pt(0, -1, 0), pt(-1, 0, 0)), false))
	require.NotNil(t, gd)
	gd.Bake()
	assertVec(t, mgl64.Vec3{-1, 0, 0}, vertexAt(gd, 49), "end")
	mid := vertexAt(gd, 24).Add(vertexAt(gd, 25)).Mul(0.5).Normalize()
	assertVec(t, mgl64.Vec3{0, -1, 0}, mid, "passes the midpoint side")
}

func TestArcDegenerate(t *testing.T) {
	c, _ := newConverter(t, nil)
	p := pt(1, 0, 0)
	gd := convert(t, c, graph.NewNode(arcRecord(pt(0, 0, 0), p, p, p), false))
	require.NotNil(t, gd)
	assert.False(t, gd.IsEmpty())
	gd.Bake()
	for _, f := range gd.Attributes.Position {
		assert.False(t, math.IsNaN(f))
	}

	// Every point coincides with the origin.
	o := pt(0, 0, 0)
	gd = convert(t, c, graph.NewNode(arcRecord(o, o, o, o), false))
	require.NotNil(t, gd)
	gd.Bake()
	for _, f := range gd.Attributes.Position {
		assert.False(t, math.IsNaN(f))
	}
}

func TestArcUnitScale(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := arcRecord(pt(1000, 0, 0), pt(2000, 0, 0), pt(1000+1000*math.Sqrt2/2, 1000*math.Sqrt2/2, 0), pt(1000, 1000, 0))
	raw["units"] = "mm"
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	gd.Bake()
	assertVec(t, mgl64.Vec3{2, 0, 0}, vertexAt(gd, 0), "start in meters")
	assertVec(t, mgl64.Vec3{1, 1, 0}, vertexAt(gd, 49), "end in meters")
}

func TestPolycurveMergesSegments(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Polycurve",
		"segments": []any{
			graph.Object{"speckle_type": "Objects.Geometry.Line", "start": pt(0, 0, 0), "end": pt(1, 0, 0), "units": "m"},
			graph.Object{"speckle_type": "Objects.Geometry.Line", "start": pt(1000, 0, 0), "end": pt(1000, 1000, 0), "units": "mm"},
		},
	}
	n := graph.NewNode(raw, false)
	gd := convert(t, c, n)
	require.NotNil(t, gd)
	assert.Equal(t, 4, gd.VertexCount())
	assert.True(t, gd.Baked())
	assertVec(t, mgl64.Vec3{1, 1, 0}, vertexAt(gd, 3), "segments share one space")
}

func TestCurveUsesDisplayValue(t *testing.T) {
	c, _ := newConverter(t, nil)
	raw := graph.Object{
		"speckle_type": "Objects.Geometry.Curve",
		"displayValue": graph.Object{
			"speckle_type": "Objects.Geometry.Polyline",
			"value":        []float64{0, 0, 0, 1, 0, 0, 2, 1, 0},
		},
	}
	gd := convert(t, c, graph.NewNode(raw, false))
	require.NotNil(t, gd)
	assert.Equal(t, 3, gd.VertexCount())
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	c := converter.New(nil, config.Config{}, nil)

	circle := graph.Object{
		"speckle_type": "Objects.Geometry.Circle",
		"plane":        xyPlane(0, 0, 0),
		"radius":       1.0,
		"units":        "m",
	}
	gd := convert(t, c, graph.NewNode(circle, false))
	require.NotNil(t, gd)
	assert.Equal(t, 64, gd.VertexCount())
	gd.Bake()
	for _, f := range gd.Attributes.Position {
		require.False(t, math.IsNaN(f))
	}

	s := math.Sqrt2 / 2
	gd = convert(t, c, graph.NewNode(arcRecord(pt(0, 0, 0), pt(1, 0, 0), pt(s, s, 0), pt(0, 1, 0)), false))
	require.NotNil(t, gd)
	assert.Equal(t, 50, gd.VertexCount())
}
