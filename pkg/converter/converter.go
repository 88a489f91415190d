// Package converter turns graph nodes into GeometryData. There is one
// conversion routine per geometry kind; Convert dispatches on the node's
// resolved speckle_type.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/loader"
	"github.com/chazu/speckleconv/pkg/units"
)

// FetchError reports that data a node depends on could not be fetched.
// It is the only failure Convert returns besides context cancellation;
// the node's geometry is meaningless without the missing data.
type FetchError struct {
	NodeID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Converter converts nodes to geometry. It is safe for concurrent use.
type Converter struct {
	types    *graph.TypeResolver
	resolver *loader.Resolver
	cfg      config.Config
	log      *slog.Logger
}

// New returns a Converter. The resolver may be nil when every record is
// already literal; a nil logger uses slog.Default(). Unset tunables in cfg
// take their defaults.
func New(resolver *loader.Resolver, cfg config.Config, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	if resolver == nil {
		resolver = loader.NewResolver(nil, log)
	}
	return &Converter{
		types:    graph.NewTypeResolver(),
		resolver: resolver,
		cfg:      cfg.WithDefaults(),
		log:      log,
	}
}

// SpeckleType returns the canonical kind of the node.
func (c *Converter) SpeckleType(n *graph.Node) graph.SpeckleType {
	return c.types.Resolve(n)
}

// Types exposes the resolver's memo table to callers that classify raw
// records before wrapping them in nodes.
func (c *Converter) Types() *graph.TypeResolver {
	return c.types
}

// Convert produces the geometry for one node. Containers, unknown kinds
// and malformed records yield nil. A failure inside a single conversion is
// logged and yields nil so sibling conversions proceed; only fetch failures
// and context cancellation are returned as errors.
func (c *Converter) Convert(ctx context.Context, n *graph.Node) (gd *geometry.GeometryData, err error) {
	if n == nil || n.Raw == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := c.SpeckleType(n)

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("conversion panicked", "id", n.ID, "type", t, "panic", r)
			gd, err = nil, nil
		}
	}()

	gd, err = c.dispatch(ctx, t, n)
	if err == nil {
		return gd, nil
	}

	var fe *FetchError
	if errors.As(err, &fe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	c.log.Error("conversion failed", "id", n.ID, "type", t, "err", err)
	return nil, nil
}

func (c *Converter) dispatch(ctx context.Context, t graph.SpeckleType, n *graph.Node) (*geometry.GeometryData, error) {
	switch t {
	case graph.Mesh:
		return c.mesh(ctx, n)
	case graph.Pointcloud:
		return c.pointcloud(ctx, n)
	case graph.Point:
		return c.point(n)
	case graph.Line:
		return c.line(n)
	case graph.Polyline:
		return c.polyline(ctx, n)
	case graph.Box:
		return c.box(n)
	case graph.Polycurve, graph.Curve:
		return c.composite(ctx, t, n)
	case graph.Circle:
		return c.circle(n)
	case graph.Ellipse:
		return c.ellipse(n)
	case graph.Arc:
		return c.arc(n)
	case graph.Transform:
		return c.transform(n)
	case graph.Text:
		return c.text(n)
	case graph.View3D:
		return c.view3D(n)
	case graph.BlockInstance, graph.RevitInstance, graph.Brep:
		// Containers: the traversal substitutes display values or children.
		return nil, nil
	default:
		return nil, nil
	}
}

// Dispose releases the heavy raw buffers of a node and its nested
// segments. Every GeometryData aliasing the node must have been baked or
// released, and instanced nodes must be sealed.
func (c *Converter) Dispose(n *graph.Node) error {
	if n == nil {
		return nil
	}
	for _, child := range n.Nested {
		if err := c.Dispose(child); err != nil {
			return err
		}
	}
	if err := n.Dispose(); err != nil {
		return fmt.Errorf("dispose %s: %w", n.Short(), err)
	}
	c.log.Debug("disposed node", "id", n.ID)
	return nil
}

// conversionFactor returns the node's scale to meters.
func conversionFactor(raw graph.Object) float64 {
	return units.ConversionFactor(raw.String("units"))
}

func scaleBake(cf float64) *mgl64.Mat4 {
	return geometry.Mat(mgl64.Scale3D(cf, cf, cf))
}

// floats reads a numeric field, dechunking it when needed. aliased is true
// when the returned slice is the node's own storage.
func (c *Converter) floats(ctx context.Context, n *graph.Node, key string) (buf []float64, aliased bool, err error) {
	v, ok := n.Raw[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	if typed, ok := v.([]float64); ok {
		return typed, true, nil
	}
	buf, err = c.resolver.DechunkFloats(ctx, v)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		return nil, false, &FetchError{NodeID: n.ID, Err: fmt.Errorf("%s: %w", key, err)}
	}
	return buf, false, nil
}

// wrap builds geometry over a position buffer. Buffers the converter
// allocated are owned outright. Buffers read from the raw record are copied
// for instanced nodes and aliased under a lease otherwise.
func wrap(n *graph.Node, buf []float64, aliased bool) (*geometry.GeometryData, error) {
	if !aliased {
		return geometry.New(buf), nil
	}
	if n.Instanced {
		return geometry.New(slices.Clone(buf)), nil
	}
	lease, err := n.Acquire()
	if err != nil {
		return nil, err
	}
	return geometry.NewAliased(buf, lease), nil
}
