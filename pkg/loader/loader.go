// Package loader fetches raw records by id and reassembles referenced and
// chunked data. Network transport is the host's concern; this package only
// sees the ObjectLoader interface.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chazu/speckleconv/pkg/graph"
)

// ErrNotFound is returned when a loader has no record for an id.
var ErrNotFound = errors.New("object not found")

// ObjectLoader fetches one record by id. It must return the same logical
// record for the same id but need not cache.
type ObjectLoader interface {
	GetObject(ctx context.Context, id string) (graph.Object, error)
}

// MemoryLoader serves records from memory. It is safe for concurrent use.
type MemoryLoader struct {
	mu      sync.RWMutex
	objects map[string]graph.Object
	rootID  string
}

// NewMemoryLoader returns a loader holding the given records. The first
// record becomes the root.
func NewMemoryLoader(objects ...graph.Object) *MemoryLoader {
	l := &MemoryLoader{objects: make(map[string]graph.Object, len(objects))}
	for _, o := range objects {
		l.Add(o)
	}
	return l
}

// Add stores a record under its id. Records without an id are ignored.
func (l *MemoryLoader) Add(o graph.Object) {
	id := o.ID()
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rootID == "" {
		l.rootID = id
	}
	l.objects[id] = o
}

// RootID returns the id of the first record added.
func (l *MemoryLoader) RootID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rootID
}

// Len returns the number of records held.
func (l *MemoryLoader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.objects)
}

// GetObject implements ObjectLoader.
func (l *MemoryLoader) GetObject(ctx context.Context, id string) (graph.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	o, ok := l.objects[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, nil
}

// ReadJSON decodes an object dump: either a JSON array of records with the
// root first, or an object whose "objects" field holds that array.
// All-numeric arrays are stored as []float64.
func ReadJSON(r io.Reader) (*MemoryLoader, error) {
	var doc any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("loader: decode: %w", err)
	}

	var list []any
	switch d := doc.(type) {
	case []any:
		list = d
	case map[string]any:
		objs, ok := d["objects"].([]any)
		if !ok {
			// A single record.
			list = []any{d}
		} else {
			list = objs
		}
	default:
		return nil, fmt.Errorf("loader: unexpected top-level JSON %T", doc)
	}

	l := NewMemoryLoader()
	for i, item := range list {
		o, ok := graph.AsObject(item)
		if !ok {
			return nil, fmt.Errorf("loader: element %d is %T, not an object", i, item)
		}
		l.Add(Normalize(o))
	}
	if l.Len() == 0 {
		return nil, errors.New("loader: no records with an id")
	}
	return l, nil
}

// LoadFile reads an object dump from disk.
func LoadFile(path string) (*MemoryLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

// Normalize converts nested maps into Object and all-numeric arrays into
// []float64, recursively and in place. It is meant for freshly decoded
// records that nothing else references yet.
func Normalize(o graph.Object) graph.Object {
	for k, v := range o {
		o[k] = normalizeValue(v)
	}
	return o
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Normalize(graph.Object(t))
	case graph.Object:
		return Normalize(t)
	case []any:
		if len(t) > 0 && allNumbers(t) {
			f, _ := graph.FloatsOf(t)
			return f
		}
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

func allNumbers(a []any) bool {
	for _, v := range a {
		if _, ok := v.(float64); !ok {
			return false
		}
	}
	return true
}
