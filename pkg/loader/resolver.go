package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chazu/speckleconv/pkg/graph"
)

// Resolver resolves references and chunked arrays through an ObjectLoader.
// It keeps no cache of its own.
type Resolver struct {
	loader ObjectLoader
	log    *slog.Logger
}

// NewResolver returns a resolver backed by l. A nil logger uses
// slog.Default().
func NewResolver(l ObjectLoader, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{loader: l, log: log}
}

// Resolve returns the record a reference points to, or obj itself when it
// is not a reference.
func (r *Resolver) Resolve(ctx context.Context, obj graph.Object) (graph.Object, error) {
	id := obj.ReferencedID()
	if id == "" {
		return obj, nil
	}
	return r.fetch(ctx, id)
}

func (r *Resolver) fetch(ctx context.Context, id string) (graph.Object, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("resolve %s: no object loader", id)
	}
	o, err := r.loader.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	return o, nil
}

func isChunked(arr []any) bool {
	if len(arr) == 0 {
		return false
	}
	o, ok := graph.AsObject(arr[0])
	return ok && o.IsReference()
}

// Dechunk flattens an array whose elements are references to data chunks.
// Literal arrays are returned unchanged. Chunks are fetched in order and any
// failure fails the whole call.
func (r *Resolver) Dechunk(ctx context.Context, arr []any) ([]any, error) {
	if !isChunked(arr) {
		return arr, nil
	}
	var out []any
	for i, el := range arr {
		payload, err := r.chunkPayload(ctx, i, el)
		if err != nil {
			return nil, err
		}
		switch p := payload.(type) {
		case []any:
			out = append(out, p...)
		case []float64:
			for _, f := range p {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// DechunkFloats is Dechunk for numeric arrays. A []float64 is returned as
// is, without copying.
func (r *Resolver) DechunkFloats(ctx context.Context, v any) ([]float64, error) {
	switch arr := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return arr, nil
	case []any:
		if !isChunked(arr) {
			return graph.FloatsOf(arr)
		}
		var out []float64
		for i, el := range arr {
			payload, err := r.chunkPayload(ctx, i, el)
			if err != nil {
				return nil, err
			}
			switch p := payload.(type) {
			case []float64:
				out = append(out, p...)
			case []any:
				f, err := graph.FloatsOf(p)
				if err != nil {
					return nil, fmt.Errorf("chunk %d: %w", i, err)
				}
				out = append(out, f...)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dechunk: unexpected %T", v)
	}
}

func (r *Resolver) chunkPayload(ctx context.Context, i int, el any) (any, error) {
	ref, ok := graph.AsObject(el)
	if !ok || !ref.IsReference() {
		return nil, fmt.Errorf("dechunk: element %d is not a chunk reference", i)
	}
	chunk, err := r.fetch(ctx, ref.ReferencedID())
	if err != nil {
		return nil, fmt.Errorf("dechunk: chunk %d: %w", i, err)
	}
	r.log.Debug("fetched chunk", "index", i, "id", ref.ReferencedID())
	switch data := chunk["data"].(type) {
	case []any, []float64:
		return data, nil
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("dechunk: chunk %d has %T payload", i, data)
	}
}
