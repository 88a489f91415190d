package converter

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/graph"
)

const unitEpsilon = 1e-12

// readPoint reads a point record in either encoding: {x, y, z} or the
// legacy {value: [x, y, z]}. A bare [x, y, z] array is accepted as well.
func readPoint(v any) (mgl64.Vec3, bool) {
	switch p := v.(type) {
	case []float64:
		if len(p) < 3 {
			return mgl64.Vec3{}, false
		}
		return mgl64.Vec3{p[0], p[1], p[2]}, true
	case []any:
		f, err := graph.FloatsOf(p)
		if err != nil {
			return mgl64.Vec3{}, false
		}
		return readPoint(f)
	}

	o, ok := graph.AsObject(v)
	if !ok {
		return mgl64.Vec3{}, false
	}
	if o.Has("value") {
		return readPoint(o["value"])
	}
	x, okx := o.Float("x")
	y, oky := o.Float("y")
	z, okz := o.Float("z")
	if !okx && !oky && !okz {
		return mgl64.Vec3{}, false
	}
	return mgl64.Vec3{x, y, z}, true
}

// pointField reads the point stored at key.
func pointField(raw graph.Object, key string) (mgl64.Vec3, bool) {
	return readPoint(raw[key])
}

// plane is a local frame read from a plane record.
type plane struct {
	origin, xdir, ydir, normal mgl64.Vec3
}

// readPlane reads origin, xdir, ydir and normal. Missing axes default to
// the world axes.
func readPlane(v any) (plane, bool) {
	o, ok := graph.AsObject(v)
	if !ok {
		return plane{}, false
	}
	p := plane{
		xdir:   mgl64.Vec3{1, 0, 0},
		ydir:   mgl64.Vec3{0, 1, 0},
		normal: mgl64.Vec3{0, 0, 1},
	}
	p.origin, _ = pointField(o, "origin")
	if x, ok := pointField(o, "xdir"); ok && x.Len() > unitEpsilon {
		p.xdir = x.Normalize()
	}
	if y, ok := pointField(o, "ydir"); ok && y.Len() > unitEpsilon {
		p.ydir = y.Normalize()
	}
	if z, ok := pointField(o, "normal"); ok && z.Len() > unitEpsilon {
		p.normal = z.Normalize()
	}
	return p, true
}

// safeNormalize returns the unit vector along v, or zero for a (near) zero
// vector.
func safeNormalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l <= unitEpsilon || math.IsNaN(l) {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / l)
}

// perpendicular returns some unit vector orthogonal to v.
func perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	axis := mgl64.Vec3{1, 0, 0}
	if math.Abs(v[0]) > 0.9 {
		axis = mgl64.Vec3{0, 1, 0}
	}
	return safeNormalize(v.Cross(axis))
}

// basis returns the matrix whose columns are x, y, z.
func basis(x, y, z mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Mat4FromCols(x.Vec4(0), y.Vec4(0), z.Vec4(0), mgl64.Vec4{0, 0, 0, 1})
}

func appendVec(buf []float64, v mgl64.Vec3) []float64 {
	return append(buf, v[0], v[1], v[2])
}
