package converter

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
)

// orthogonalTolerance bounds |a.b| for box plane axes.
const orthogonalTolerance = 1e-7

func (c *Converter) point(n *graph.Node) (*geometry.GeometryData, error) {
	p, ok := readPoint(n.Raw)
	if !ok {
		return nil, nil
	}
	gd := geometry.New(appendVec(nil, p))
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

func (c *Converter) line(n *graph.Node) (*geometry.GeometryData, error) {
	start, ok1 := pointField(n.Raw, "start")
	end, ok2 := pointField(n.Raw, "end")
	if !ok1 || !ok2 {
		// Legacy lines carry both endpoints in one flat value list.
		v, ok := n.Raw.Floats("value")
		if !ok || len(v) < 6 {
			return nil, nil
		}
		start, end = mgl64.Vec3{v[0], v[1], v[2]}, mgl64.Vec3{v[3], v[4], v[5]}
	}
	gd := geometry.New(appendVec(appendVec(make([]float64, 0, 6), start), end))
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

// polyline reads either the flat "value" coordinate list or a "points"
// list of point records. Closed polylines repeat the first point.
func (c *Converter) polyline(ctx context.Context, n *graph.Node) (*geometry.GeometryData, error) {
	var (
		buf     []float64
		aliased bool
		err     error
	)
	switch {
	case n.Raw.Has("value"):
		buf, aliased, err = c.floats(ctx, n, "value")
		if err != nil {
			return nil, err
		}
	case n.Raw.Has("points"):
		if flat, ok := n.Raw["points"].([]float64); ok {
			buf, aliased = flat, true
			break
		}
		pts, _ := n.Raw.Array("points")
		for i, p := range pts {
			v, ok := readPoint(p)
			if !ok {
				return nil, fmt.Errorf("points[%d] is not a point", i)
			}
			buf = appendVec(buf, v)
		}
	}
	if len(buf) < 3 {
		return nil, nil
	}
	if len(buf)%3 != 0 {
		return nil, fmt.Errorf("polyline coordinate count %d is not a multiple of 3", len(buf))
	}

	if n.Raw.Bool("closed") {
		closed := make([]float64, len(buf), len(buf)+3)
		copy(closed, buf)
		buf = append(closed, buf[0], buf[1], buf[2])
		aliased = false
	}

	gd, err := wrap(n, buf, aliased)
	if err != nil {
		return nil, err
	}
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

// boxEdges lists the 12 edges of a box over corner indices whose bits
// select x (1), y (2) and z (4) extents.
var boxEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // along x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // along y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // along z
}

// box emits an index-free wireframe: 12 edges, two endpoints each.
func (c *Converter) box(n *graph.Node) (*geometry.GeometryData, error) {
	var ext [3][2]float64
	for i, key := range []string{"xSize", "ySize", "zSize"} {
		iv, ok := n.Raw.Object(key)
		if !ok {
			return nil, nil
		}
		start, ok1 := iv.Float("start")
		end, ok2 := iv.Float("end")
		if !ok1 || !ok2 {
			return nil, nil
		}
		ext[i] = [2]float64{start, end}
	}

	var corners [8]mgl64.Vec3
	for i := range corners {
		corners[i] = mgl64.Vec3{ext[0][i&1], ext[1][(i>>1)&1], ext[2][(i>>2)&1]}
	}
	pos := make([]float64, 0, 24*3)
	for _, e := range boxEdges {
		pos = appendVec(pos, corners[e[0]])
		pos = appendVec(pos, corners[e[1]])
	}

	cf := conversionFactor(n.Raw)
	place := mgl64.Ident4()
	if pl, ok := readPlane(n.Raw["basePlane"]); ok {
		rot := mgl64.Ident4()
		if orthogonal(pl.xdir, pl.ydir, pl.normal) {
			rot = basis(pl.xdir, pl.ydir, pl.normal)
		} else {
			c.log.Warn("box plane axes are not orthogonal, ignoring rotation", "id", n.ID)
		}
		place = mgl64.Translate3D(pl.origin[0], pl.origin[1], pl.origin[2]).Mul4(rot)
	}

	gd := geometry.New(pos)
	gd.BakeTransform = geometry.Mat(mgl64.Scale3D(cf, cf, cf).Mul4(place))
	return gd, nil
}

func orthogonal(x, y, z mgl64.Vec3) bool {
	return math.Abs(x.Dot(y)) < orthogonalTolerance &&
		math.Abs(y.Dot(z)) < orthogonalTolerance &&
		math.Abs(x.Dot(z)) < orthogonalTolerance
}
