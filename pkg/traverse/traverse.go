// Package traverse walks an object graph from its root, places instanced
// definitions and converts every geometry leaf through a bounded pool of
// workers.
package traverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/speckleconv/pkg/config"
	"github.com/chazu/speckleconv/pkg/converter"
	"github.com/chazu/speckleconv/pkg/geometry"
	"github.com/chazu/speckleconv/pkg/graph"
	"github.com/chazu/speckleconv/pkg/loader"
)

// maxDepth bounds nesting so a malformed graph cannot recurse forever.
const maxDepth = 64

var (
	definitionKeys = []string{"definition", "blockDefinition", "@definition", "@blockDefinition"}
	geometryKeys   = []string{"geometry", "@geometry", "elements", "@elements", "displayValue", "@displayValue"}
	childKeys      = []string{"displayValue", "@displayValue", "elements", "@elements"}
)

// RenderView is one converted leaf placed in world space.
type RenderView struct {
	NodeID   string
	Type     graph.SpeckleType
	Geometry *geometry.GeometryData
	// Transform is the accumulated instance placement. Identity outside
	// of instances.
	Transform mgl64.Mat4
}

// WorldPositions bakes the geometry and returns its positions with the
// placement applied, in a new slice.
func (v RenderView) WorldPositions() []float64 {
	v.Geometry.Bake()
	return geometry.TransformPositions(v.Matrix(), v.Geometry.Attributes.Position)
}

// Matrix returns the full placement: the instance transform followed by
// any transform the geometry carries itself.
func (v RenderView) Matrix() mgl64.Mat4 {
	if v.Geometry != nil && v.Geometry.Transform != nil {
		return v.Transform.Mul4(*v.Geometry.Transform)
	}
	return v.Transform
}

// Result is the outcome of a walk.
type Result struct {
	Views []RenderView
	// Nodes lists every node handed to the converter, once each.
	Nodes []*graph.Node
	// Skipped counts leaves dropped because their data could not be fetched.
	Skipped int
}

// Counts returns the number of views per kind.
func (r *Result) Counts() map[graph.SpeckleType]int {
	out := make(map[graph.SpeckleType]int)
	for _, v := range r.Views {
		out[v.Type]++
	}
	return out
}

// ProgressFunc is called after each leaf conversion finishes.
type ProgressFunc func(done, total int)

// Walker traverses a graph and converts its leaves.
type Walker struct {
	resolver *loader.Resolver
	conv     *converter.Converter
	cfg      config.Config
	log      *slog.Logger

	// OnProgress, when set, is called from worker goroutines.
	OnProgress ProgressFunc
}

// New returns a Walker. A nil logger uses slog.Default(); unset tunables in
// cfg take their defaults.
func New(resolver *loader.Resolver, conv *converter.Converter, cfg config.Config, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{resolver: resolver, conv: conv, cfg: cfg.WithDefaults(), log: log}
}

type job struct {
	node      *graph.Node
	typ       graph.SpeckleType
	transform mgl64.Mat4
}

// walkState is owned by the single goroutine that collects jobs.
type walkState struct {
	jobs    []job
	nodes   map[string]*graph.Node
	order   []*graph.Node
	path    map[string]bool
	skipped int
}

// Walk fetches the root record and converts everything reachable from it.
// The error is non-nil only when the root cannot be fetched or ctx is
// canceled; failures of individual nodes are logged and skipped.
func (w *Walker) Walk(ctx context.Context, rootID string) (*Result, error) {
	root, err := w.resolver.Resolve(ctx, graph.Object{"referencedId": rootID})
	if err != nil {
		return nil, fmt.Errorf("fetch root: %w", err)
	}

	st := &walkState{
		nodes: make(map[string]*graph.Node),
		path:  make(map[string]bool),
	}
	if err := w.visit(ctx, st, root, mgl64.Ident4(), false, 0); err != nil {
		return nil, err
	}
	w.log.Debug("collected leaves", "leaves", len(st.jobs), "nodes", len(st.order))

	views, skipped, err := w.convert(ctx, st.jobs)
	if err != nil {
		return nil, err
	}

	for _, n := range st.order {
		seal(n)
	}

	return &Result{Views: views, Nodes: st.order, Skipped: st.skipped + skipped}, nil
}

func (w *Walker) visit(ctx context.Context, st *walkState, obj graph.Object, xf mgl64.Mat4, instanced bool, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxDepth {
		w.log.Warn("graph nested too deeply, stopping", "id", obj.ID(), "depth", depth)
		return nil
	}

	obj, err := w.resolver.Resolve(ctx, obj)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		w.log.Warn("skipping unresolved object", "err", err)
		st.skipped++
		return nil
	}

	id := obj.ID()
	if id != "" {
		if st.path[id] {
			w.log.Warn("reference cycle, skipping", "id", id)
			return nil
		}
		st.path[id] = true
		defer delete(st.path, id)
	}

	t := w.conv.Types().ResolveObject(obj)
	switch t {
	case graph.BlockInstance, graph.RevitInstance:
		return w.visitInstance(ctx, st, obj, xf, depth)
	case graph.Brep:
		return w.visitChildren(ctx, st, obj, []string{"displayValue", "@displayValue"}, xf, instanced, depth)
	case graph.Mesh, graph.Pointcloud, graph.Point, graph.Line, graph.Polyline,
		graph.Box, graph.Polycurve, graph.Curve, graph.Circle, graph.Arc,
		graph.Ellipse, graph.Text, graph.View3D:
		return w.leaf(ctx, st, obj, t, xf, instanced)
	case graph.Transform:
		// Consumed by instances; a bare record has nothing to draw.
		return nil
	default:
		return w.visitChildren(ctx, st, obj, w.containerKeys(obj), xf, instanced, depth)
	}
}

// containerKeys returns the fields of a generic container that may hold
// children: the well-known lists followed by detached "@" fields, sorted.
func (w *Walker) containerKeys(obj graph.Object) []string {
	keys := append([]string(nil), childKeys...)
	var extra []string
	for k := range obj {
		if strings.HasPrefix(k, "@") && k != "@elements" && k != "@displayValue" {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func (w *Walker) visitChildren(ctx context.Context, st *walkState, obj graph.Object, keys []string, xf mgl64.Mat4, instanced bool, depth int) error {
	for _, k := range keys {
		for _, child := range children(obj[k]) {
			if err := w.visit(ctx, st, child, xf, instanced, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// visitInstance places the definition's geometry under the instance
// transform. Definition leaves are shared by every placement.
func (w *Walker) visitInstance(ctx context.Context, st *walkState, obj graph.Object, xf mgl64.Mat4, depth int) error {
	m, err := w.conv.InstanceTransform(graph.NewNode(obj, false))
	if err != nil {
		w.log.Warn("instance transform unreadable, using identity", "id", obj.ID(), "err", err)
		m = mgl64.Ident4()
	}
	placed := xf.Mul4(m)

	var def graph.Object
	for _, k := range definitionKeys {
		if d, ok := obj.Object(k); ok {
			def = d
			break
		}
	}
	if def == nil {
		// Some producers inline the geometry on the instance itself.
		return w.visitChildren(ctx, st, obj, geometryKeys, placed, true, depth)
	}
	def, err = w.resolver.Resolve(ctx, def)
	if err != nil {
		if isCanceled(err) {
			return err
		}
		w.log.Warn("skipping instance with unresolved definition", "id", obj.ID(), "err", err)
		st.skipped++
		return nil
	}
	return w.visitChildren(ctx, st, def, geometryKeys, placed, true, depth)
}

func (w *Walker) leaf(ctx context.Context, st *walkState, obj graph.Object, t graph.SpeckleType, xf mgl64.Mat4, instanced bool) error {
	n, seen := st.nodes[obj.ID()]
	if !seen || obj.ID() == "" {
		n = graph.NewNode(obj, instanced)
		if t == graph.Polycurve || t == graph.Curve {
			nested, err := w.conv.NestedNodes(ctx, t, n)
			if err != nil {
				if isCanceled(err) {
					return err
				}
				w.log.Warn("skipping curve with unresolved segments", "id", n.ID, "err", err)
				st.skipped++
				return nil
			}
			n.Nested = nested
		}
		if obj.ID() != "" {
			st.nodes[obj.ID()] = n
		}
		st.order = append(st.order, n)
	} else if !n.Instanced {
		// Reached through a second path: the record is shared from now on.
		markInstanced(n)
	}
	if instanced && !n.Instanced {
		markInstanced(n)
	}
	st.jobs = append(st.jobs, job{node: n, typ: t, transform: xf})
	return nil
}

func seal(n *graph.Node) {
	if n.Instanced {
		n.Seal()
	}
	for _, c := range n.Nested {
		seal(c)
	}
}

func markInstanced(n *graph.Node) {
	n.Instanced = true
	for _, c := range n.Nested {
		markInstanced(c)
	}
}

// convert runs the leaf jobs through at most MaxInFlight workers. Views
// keep the order in which leaves were collected.
func (w *Walker) convert(ctx context.Context, jobs []job) ([]RenderView, int, error) {
	results := make([]*RenderView, len(jobs))
	var (
		done    atomic.Int64
		skipped atomic.Int64
		mu      sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.cfg.MaxInFlight, 1))
	for i, j := range jobs {
		g.Go(func() error {
			gd, err := w.conv.Convert(gctx, j.node)
			w.progress(&mu, int(done.Add(1)), len(jobs))

			var fe *converter.FetchError
			switch {
			case errors.As(err, &fe):
				w.log.Warn("skipping node", "id", j.node.ID, "type", j.typ, "err", err)
				skipped.Add(1)
				return nil
			case err != nil:
				return err
			case gd == nil || (gd.IsEmpty() && gd.MetaData == nil):
				return nil
			}
			results[i] = &RenderView{NodeID: j.node.ID, Type: j.typ, Geometry: gd, Transform: j.transform}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, v := range results {
			if v != nil {
				v.Geometry.Release()
			}
		}
		return nil, 0, err
	}

	views := make([]RenderView, 0, len(results))
	for _, v := range results {
		if v != nil {
			views = append(views, *v)
		}
	}
	return views, int(skipped.Load()), nil
}

func (w *Walker) progress(mu *sync.Mutex, done, total int) {
	if w.OnProgress == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	w.OnProgress(done, total)
}

// children returns the records held by a field: a single record or the
// record elements of an array.
func children(v any) []graph.Object {
	if o, ok := graph.AsObject(v); ok {
		return []graph.Object{o}
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]graph.Object, 0, len(arr))
	for _, el := range arr {
		if o, ok := graph.AsObject(el); ok {
			out = append(out, o)
		}
	}
	return out
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
