package converter

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/chazu/speckleconv/pkg/colorcodec"
	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/triangulate"
)

func (c *Converter) mesh(ctx context.Context, n *graph.Node) (*geometry.GeometryData, error) {
	if !n.Raw.Has("vertices") || !n.Raw.Has("faces") {
		return nil, nil
	}
	vertices, aliased, err := c.floats(ctx, n, "vertices")
	if err != nil {
		return nil, err
	}
	faces, _, err := c.floats(ctx, n, "faces")
	if err != nil {
		return nil, err
	}
	if len(vertices) == 0 || len(faces) == 0 {
		return nil, nil
	}
	if len(vertices)%3 != 0 {
		return nil, fmt.Errorf("vertex buffer length %d is not a multiple of 3", len(vertices))
	}

	ints, err := toInts(faces)
	if err != nil {
		return nil, err
	}
	index, err := triangulate.Faces(ints, vertices)
	if err != nil {
		return nil, err
	}

	colors, err := c.vertexColors(ctx, n, len(vertices)/3)
	if err != nil {
		return nil, err
	}

	gd, err := wrap(n, vertices, aliased)
	if err != nil {
		return nil, err
	}
	gd.Attributes.Index = index
	gd.Attributes.Color = colors
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

func (c *Converter) pointcloud(ctx context.Context, n *graph.Node) (*geometry.GeometryData, error) {
	points, aliased, err := c.floats(ctx, n, "points")
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	if len(points)%3 != 0 {
		return nil, fmt.Errorf("point buffer length %d is not a multiple of 3", len(points))
	}

	colors, err := c.vertexColors(ctx, n, len(points)/3)
	if err != nil {
		return nil, err
	}

	gd, err := wrap(n, points, aliased)
	if err != nil {
		return nil, err
	}
	gd.Attributes.Color = colors
	gd.BakeTransform = scaleBake(conversionFactor(n.Raw))
	return gd, nil
}

// vertexColors decodes the node's packed colors into linear RGB, one triple
// per vertex. A count mismatch is logged; missing entries are filled with
// white and extra ones dropped.
func (c *Converter) vertexColors(ctx context.Context, n *graph.Node, vertexCount int) ([]float64, error) {
	packed, _, err := c.floats(ctx, n, "colors")
	if err != nil {
		return nil, err
	}
	if len(packed) == 0 {
		return nil, nil
	}
	if len(packed) != vertexCount {
		c.log.Warn("vertex colors mismatched with vertex count",
			slog.String("id", n.ID),
			slog.Int("colors", len(packed)),
			slog.Int("vertices", vertexCount))
	}

	rgb := colorcodec.UnpackLinear(packed)
	want := vertexCount * 3
	if len(rgb) > want {
		return rgb[:want], nil
	}
	for len(rgb) < want {
		rgb = append(rgb, 1)
	}
	return rgb, nil
}

// toInts converts a face stream, rejecting values that are not integers.
func toInts(fs []float64) ([]int, error) {
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("faces[%d] = %v is not an integer", i, f)
		}
		out[i] = int(f)
	}
	return out, nil
}
