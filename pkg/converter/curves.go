package converter

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
)

// curveSegments clamps a sampling resolution to the configured bounds.
func (c *Converter) curveSegments(want float64) int {
	n := int(math.Ceil(want))
	if math.IsNaN(want) || n < c.cfg.MinCurveSegments {
		n = c.cfg.MinCurveSegments
	}
	if n > c.cfg.MaxCurveSegments {
		n = c.cfg.MaxCurveSegments
	}
	return n
}

// sampleEllipse returns segments+1 points of a closed ellipse in the
// plane, in the plane's units.
func sampleEllipse(pl plane, r1, r2 float64, segments int) []float64 {
	pos := make([]float64, 0, (segments+1)*3)
	for i := 0; i <= segments; i++ {
		t := 2 * math.Pi * float64(i) / float64(segments)
		p := pl.origin.Add(pl.xdir.Mul(r1 * math.Cos(t))).Add(pl.ydir.Mul(r2 * math.Sin(t)))
		pos = appendVec(pos, p)
	}
	return pos
}

// circle samples so that each segment is close to the configured length
// once converted to meters.
func (c *Converter) circle(n *graph.Node) (*geometry.GeometryData, error) {
	r, ok := n.Raw.Float("radius")
	if !ok || r <= 0 {
		return nil, nil
	}
	pl, ok := readPlane(n.Raw["plane"])
	if !ok {
		return nil, nil
	}
	cf := conversionFactor(n.Raw)
	segments := c.curveSegments(2 * math.Pi * r * cf / c.cfg.CurveSegmentLength)

	gd := geometry.New(sampleEllipse(pl, r, r, segments))
	gd.BakeTransform = scaleBake(cf)
	return gd, nil
}

func (c *Converter) ellipse(n *graph.Node) (*geometry.GeometryData, error) {
	r1, ok1 := n.Raw.Float("firstRadius")
	r2, ok2 := n.Raw.Float("secondRadius")
	if !ok1 || !ok2 || r1 <= 0 || r2 <= 0 {
		return nil, nil
	}
	pl, ok := readPlane(n.Raw["plane"])
	if !ok {
		return nil, nil
	}
	segments := c.curveSegments(2 * math.Pi * r1 * c.cfg.EllipseDensity)

	gd := geometry.New(sampleEllipse(pl, r1, r2, segments))
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

// arcFrame is an arc reconstructed from its plane origin and three points.
type arcFrame struct {
	origin mgl64.Vec3
	// rot maps the local XY plane onto the arc plane; local X points at
	// the start point.
	rot    mgl64.Mat4
	radius float64
	angle  float64
}

// reconstructArc derives the frame of an arc through start, mid and end
// around origin.
func reconstructArc(origin, start, end, mid mgl64.Vec3, pl plane, hasPlane bool) arcFrame {
	toStart := start.Sub(origin)
	radius := toStart.Len()

	v0 := safeNormalize(toStart)
	if v0 == (mgl64.Vec3{}) {
		v0 = pl.xdir
		if !hasPlane {
			v0 = mgl64.Vec3{1, 0, 0}
		}
	}
	v1 := safeNormalize(end.Sub(origin))
	vm := safeNormalize(mid.Sub(origin))

	// When start and end are antipodal or coincide, v0 x v1 collapses and
	// the midpoint has to pin down the plane instead.
	v2 := safeNormalize(v0.Cross(v1))
	if v2 == (mgl64.Vec3{}) {
		v2 = safeNormalize(v0.Cross(vm))
	}
	if v2 == (mgl64.Vec3{}) && hasPlane {
		v2 = safeNormalize(pl.normal.Sub(v0.Mul(pl.normal.Dot(v0))))
	}
	if v2 == (mgl64.Vec3{}) {
		v2 = perpendicular(v0)
	}

	angle := math.Acos(mgl64.Clamp(v0.Dot(v1), -1, 1))
	if v1 == (mgl64.Vec3{}) {
		angle = 0
	}

	chordMid := start.Add(end).Mul(0.5)
	if mid.Sub(origin).Dot(chordMid.Sub(origin)) < 0 {
		v2 = v2.Mul(-1)
		angle = 2*math.Pi - angle
	}

	v3 := v2.Cross(v0)
	return arcFrame{
		origin: origin,
		rot:    basis(v0, v3, v2),
		radius: radius,
		angle:  angle,
	}
}

func (c *Converter) arc(n *graph.Node) (*geometry.GeometryData, error) {
	pl, hasPlane := readPlane(n.Raw["plane"])
	start, ok1 := pointField(n.Raw, "startPoint")
	end, ok2 := pointField(n.Raw, "endPoint")
	mid, ok3 := pointField(n.Raw, "midPoint")
	if !ok1 || !ok2 || !ok3 {
		return nil, nil
	}
	origin := pl.origin
	if !hasPlane {
		origin = circumcenter(start, mid, end)
	}

	f := reconstructArc(origin, start, end, mid, pl, hasPlane)
	if f.radius == 0 {
		if r, ok := n.Raw.Float("radius"); ok {
			f.radius = r
		}
	}

	samples := c.cfg.ArcSamples
	pos := make([]float64, 0, samples*3)
	for i := 0; i < samples; i++ {
		t := f.angle * float64(i) / float64(samples-1)
		pos = append(pos, f.radius*math.Cos(t), f.radius*math.Sin(t), 0)
	}

	cf := conversionFactor(n.Raw)
	o := f.origin.Mul(cf)
	bake := mgl64.Translate3D(o[0], o[1], o[2]).Mul4(f.rot).Mul4(mgl64.Scale3D(cf, cf, cf))

	gd := geometry.New(pos)
	gd.BakeTransform = &bake
	return gd, nil
}

// circumcenter returns the center of the circle through a, b and c, or a
// when the points are collinear.
func circumcenter(a, b, c mgl64.Vec3) mgl64.Vec3 {
	ab := b.Sub(a)
	ac := c.Sub(a)
	n := ab.Cross(ac)
	d := 2 * n.Dot(n)
	if d <= unitEpsilon {
		return a
	}
	off := n.Cross(ab).Mul(ac.Dot(ac)).Add(ac.Cross(n).Mul(ab.Dot(ab))).Mul(1 / d)
	return a.Add(off)
}

// composite converts the segments of a Polycurve, or the display value of
// a Curve, and merges them into one buffer.
func (c *Converter) composite(ctx context.Context, t graph.SpeckleType, n *graph.Node) (*geometry.GeometryData, error) {
	nested := n.Nested
	if len(nested) == 0 {
		var err error
		nested, err = c.NestedNodes(ctx, t, n)
		if err != nil {
			return nil, err
		}
	}

	var parts []*geometry.GeometryData
	for _, child := range nested {
		gd, err := c.Convert(ctx, child)
		if err != nil {
			for _, p := range parts {
				p.Release()
			}
			return nil, err
		}
		if gd != nil && !gd.IsEmpty() {
			parts = append(parts, gd)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return geometry.Merge(parts), nil
}

// NestedNodes builds child nodes for a composite curve from its raw record:
// "segments" for a Polycurve, "displayValue" for a Curve. References are
// resolved; children inherit the parent's instancing.
func (c *Converter) NestedNodes(ctx context.Context, t graph.SpeckleType, n *graph.Node) ([]*graph.Node, error) {
	key := "segments"
	if t == graph.Curve {
		key = "displayValue"
	}
	v, ok := n.Raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}

	nodes := make([]*graph.Node, 0, len(items))
	for _, item := range items {
		o, ok := graph.AsObject(item)
		if !ok {
			continue
		}
		resolved, err := c.resolver.Resolve(ctx, o)
		if err != nil {
			return nil, &FetchError{NodeID: n.ID, Err: err}
		}
		child := graph.NewNode(resolved, n.Instanced)
		if ct := c.types.ResolveObject(resolved); ct == graph.Polycurve || ct == graph.Curve {
			child.Nested, err = c.NestedNodes(ctx, ct, child)
			if err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, child)
	}
	return nodes, nil
}
