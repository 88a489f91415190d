package graph

import (
	"strings"
	"sync"

	"github.com/samber/lo"
)

// BaseType is the speckle_type assumed when a record carries none.
const BaseType = "Base"

// TypeResolver maps raw speckle_type inheritance chains to canonical kinds.
// Results are memoized per raw string. It is safe for concurrent use.
type TypeResolver struct {
	memo sync.Map // string -> SpeckleType
}

// NewTypeResolver returns an empty resolver.
func NewTypeResolver() *TypeResolver {
	return &TypeResolver{}
}

// Resolve returns the kind of the node's raw record.
func (r *TypeResolver) Resolve(n *Node) SpeckleType {
	if n == nil {
		return Unknown
	}
	return r.ResolveObject(n.Raw)
}

// ResolveObject returns the kind of a raw record.
func (r *TypeResolver) ResolveObject(o Object) SpeckleType {
	raw := o.String("speckle_type")
	if raw == "" {
		raw = BaseType
	}
	return r.ResolveChain(raw)
}

// ResolveChain resolves a colon separated chain such as
// "Objects.Geometry.Brep:Objects.Geometry.Mesh". The most specific class is
// last in the chain, so segments are tried from the end.
func (r *TypeResolver) ResolveChain(chain string) SpeckleType {
	if v, ok := r.memo.Load(chain); ok {
		return v.(SpeckleType)
	}
	t := resolveChain(chain)
	r.memo.Store(chain, t)
	return t
}

func resolveChain(chain string) SpeckleType {
	for _, seg := range lo.Reverse(strings.Split(chain, ":")) {
		name := seg
		if i := strings.LastIndexByte(seg, '.'); i >= 0 {
			name = seg[i+1:]
		}
		if t, ok := ParseSpeckleType(name); ok {
			return t
		}
	}
	return Unknown
}
