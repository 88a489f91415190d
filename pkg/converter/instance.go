package converter

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/units"
)

// readMatrix loads a row-major 4x4 payload into the column-major Mat4
// convention. The payload may be a bare 16-number array or a record with a
// "matrix" or legacy "value" array.
func readMatrix(v any) (mgl64.Mat4, error) {
	var vals []float64
	switch m := v.(type) {
	case []float64:
		vals = m
	case []any:
		f, err := graph.FloatsOf(m)
		if err != nil {
			return mgl64.Mat4{}, err
		}
		vals = f
	default:
		o, ok := graph.AsObject(v)
		if !ok {
			return mgl64.Mat4{}, fmt.Errorf("transform is %T", v)
		}
		for _, key := range []string{"matrix", "value"} {
			if o.Has(key) {
				return readMatrix(o[key])
			}
		}
		return mgl64.Mat4{}, fmt.Errorf("transform record has no matrix")
	}
	if len(vals) != 16 {
		return mgl64.Mat4{}, fmt.Errorf("transform has %d values, want 16", len(vals))
	}
	var m mgl64.Mat4
	copy(m[:], vals)
	// The values were read into column-major storage; transposing yields
	// the row-major matrix they describe.
	return m.Transpose(), nil
}

// transformUnits picks the units the matrix translation is expressed in:
// the transform record's own, then the owner's.
func transformUnits(raw graph.Object) string {
	if t, ok := raw.Object("transform"); ok && t.String("units") != "" {
		return t.String("units")
	}
	return raw.String("units")
}

// InstanceTransform returns the placement matrix of a BlockInstance,
// RevitInstance or Transform node. Leaf geometry bakes its own unit scale,
// so the matrix is conjugated as Scale(cf) * M * Scale(1/cf) to keep the
// factor from being applied twice.
func (c *Converter) InstanceTransform(n *graph.Node) (mgl64.Mat4, error) {
	v, ok := n.Raw["transform"]
	if !ok || v == nil {
		// Transform records carry the matrix themselves.
		v = n.Raw
	}
	m, err := readMatrix(v)
	if err != nil {
		return mgl64.Ident4(), err
	}
	cf := units.ConversionFactor(transformUnits(n.Raw))
	if cf == 1 {
		return m, nil
	}
	return mgl64.Scale3D(cf, cf, cf).Mul4(m).Mul4(mgl64.Scale3D(1/cf, 1/cf, 1/cf)), nil
}

// transform yields geometry that only carries a placement.
func (c *Converter) transform(n *graph.Node) (*geometry.GeometryData, error) {
	m, err := c.InstanceTransform(n)
	if err != nil {
		return nil, err
	}
	return &geometry.GeometryData{Transform: &m}, nil
}

// text carries no triangles; the record passes through with its placement.
func (c *Converter) text(n *graph.Node) (*geometry.GeometryData, error) {
	cf := conversionFactor(n.Raw)
	place := mgl64.Ident4()
	if pl, ok := readPlane(n.Raw["plane"]); ok {
		place = mgl64.Translate3D(pl.origin[0], pl.origin[1], pl.origin[2]).
			Mul4(basis(pl.xdir, pl.ydir, pl.normal))
	}
	bake := mgl64.Scale3D(cf, cf, cf).Mul4(place)
	return &geometry.GeometryData{MetaData: n.Raw.Clone(), BakeTransform: &bake}, nil
}

func (c *Converter) view3D(n *graph.Node) (*geometry.GeometryData, error) {
	cf := conversionFactor(n.Raw)
	o, _ := pointField(n.Raw, "origin")
	o = o.Mul(cf)
	bake := mgl64.Translate3D(o[0], o[1], o[2])
	return &geometry.GeometryData{MetaData: n.Raw.Clone(), BakeTransform: &bake}, nil
}
